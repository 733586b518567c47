package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrAlreadyVerified   = errors.New("account already verified")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertUnverifiedAccount creates an account with zero balance, or refreshes
// the password hash and phone of an existing unverified one so a user can
// retry registration. A verified account is never overwritten.
func (s *Store) UpsertUnverifiedAccount(ctx context.Context, email, phone, passwordHash string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, phone, password_hash, balance, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, false, $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at
		WHERE accounts.verified = false
	`, uuid.New(), email, phone, passwordHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmailTaken
	}
	return nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, phone, password_hash, balance::text, verified, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email)
	return scanAccount(row)
}

// MarkVerified flips the verified flag and assigns the initial balance in
// one statement, so a concurrent duplicate verification cannot fund the
// account twice.
func (s *Store) MarkVerified(ctx context.Context, email string, initialBalance decimal.Decimal) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET verified = true, balance = $2, updated_at = now()
		WHERE email = $1 AND verified = false
		RETURNING id, email, phone, password_hash, balance::text, verified, created_at, updated_at
	`, email, initialBalance.String())

	acct, err := scanAccount(row)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	// No unverified row matched: tell an already-verified account apart
	// from an unknown one.
	existing, lookupErr := s.GetAccountByEmail(ctx, email)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if existing.Verified {
		return nil, ErrAlreadyVerified
	}
	return nil, err
}

func (s *Store) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2, updated_at = now()
		WHERE email = $1
	`, email, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ExecuteTransfer moves amount from sender to recipient and appends the
// transfer record, all inside one transaction. Both account rows are locked
// with FOR UPDATE in lexicographic email order so two opposite-direction
// transfers over the same pair cannot deadlock.
func (s *Store) ExecuteTransfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (TransferRecord, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return TransferRecord{}, fmt.Errorf("amount must be positive")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferRecord{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	balances := map[string]decimal.Decimal{}
	for _, email := range lockOrder(sender, recipient) {
		balance, err := lockAccountBalance(ctx, tx, email)
		if err != nil {
			return TransferRecord{}, err
		}
		balances[email] = balance
	}

	if balances[sender].LessThan(amount) {
		return TransferRecord{}, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	newSenderBalance := balances[sender].Sub(amount)
	newRecipientBalance := balances[recipient].Add(amount)

	if err := updateBalance(ctx, tx, sender, newSenderBalance, now); err != nil {
		return TransferRecord{}, err
	}
	if err := updateBalance(ctx, tx, recipient, newRecipientBalance, now); err != nil {
		return TransferRecord{}, err
	}

	record := TransferRecord{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		CreatedAt: now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO transfers (id, sender_email, recipient_email, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.Sender, record.Recipient, record.Amount.String(), record.CreatedAt); err != nil {
		return TransferRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferRecord{}, err
	}
	committed = true

	return record, nil
}

func (s *Store) ListTransfers(ctx context.Context, email string) ([]TransferRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_email, recipient_email, amount::text, created_at
		FROM transfers
		WHERE sender_email = $1 OR recipient_email = $1
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TransferRecord
	for rows.Next() {
		var rec TransferRecord
		var amountStr string
		if err := rows.Scan(&rec.ID, &rec.Sender, &rec.Recipient, &amountStr, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse transfer amount: %w", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func lockAccountBalance(ctx context.Context, tx pgx.Tx, email string) (decimal.Decimal, error) {
	var balanceStr string
	row := tx.QueryRow(ctx, `
		SELECT balance::text
		FROM accounts
		WHERE email = $1
		FOR UPDATE
	`, email)
	if err := row.Scan(&balanceStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
		}
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	return balance, nil
}

func updateBalance(ctx context.Context, tx pgx.Tx, email string, balance decimal.Decimal, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, updated_at = $3
		WHERE email = $1
	`, email, balance.String(), now)
	return err
}

// lockOrder returns the two emails in the order their rows must be locked.
func lockOrder(a, b string) []string {
	if a < b {
		return []string{a, b}
	}
	return []string{b, a}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var acct Account
	var balanceStr string
	if err := row.Scan(&acct.ID, &acct.Email, &acct.Phone, &acct.PasswordHash, &balanceStr, &acct.Verified, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	var err error
	acct.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return &acct, nil
}
