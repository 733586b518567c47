// Package transfer holds the business rules around moving money between
// accounts. Balance mutation itself is delegated to storage, which runs it
// atomically; this package owns validation, event emission, and the signed
// history view.
package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/internal/events"
	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
)

var (
	ErrInvalidAmount     = errors.New("invalid transfer amount")
	ErrSelfTransfer      = errors.New("sender and recipient are the same account")
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetAccountByEmail(ctx context.Context, email string) (*storage.Account, error)
	ExecuteTransfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (storage.TransferRecord, error)
	ListTransfers(ctx context.Context, email string) ([]storage.TransferRecord, error)
}

// Publisher receives the executed-transfer event after commit.
type Publisher interface {
	PublishTransferExecuted(ctx context.Context, event events.TransferExecuted)
}

type Engine struct {
	store     Store
	publisher Publisher
	maxAmount decimal.Decimal
	logger    *slog.Logger
	metrics   *Metrics
}

func NewEngine(store Store, publisher Publisher, maxAmount decimal.Decimal, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		publisher: publisher,
		maxAmount: maxAmount,
		logger:    logger,
		metrics:   metrics,
	}
}

// Execute validates and performs a transfer from sender to recipient.
// Validation failures and the recipient lookup happen before any balance is
// touched, so a rejected transfer leaves both accounts untouched.
func (e *Engine) Execute(ctx context.Context, sender, recipient string, amount decimal.Decimal) (storage.TransferRecord, error) {
	sender = NormalizeEmail(sender)
	recipient = NormalizeEmail(recipient)

	start := time.Now()
	record, err := e.execute(ctx, sender, recipient, amount)
	if e.metrics != nil {
		e.metrics.Observe(err, time.Since(start))
	}
	return record, err
}

func (e *Engine) execute(ctx context.Context, sender, recipient string, amount decimal.Decimal) (storage.TransferRecord, error) {
	if err := e.validateAmount(amount); err != nil {
		return storage.TransferRecord{}, err
	}
	if sender == recipient {
		return storage.TransferRecord{}, ErrSelfTransfer
	}

	if _, err := e.store.GetAccountByEmail(ctx, recipient); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return storage.TransferRecord{}, ErrRecipientNotFound
		}
		return storage.TransferRecord{}, err
	}

	record, err := e.store.ExecuteTransfer(ctx, sender, recipient, amount)
	if err != nil {
		return storage.TransferRecord{}, err
	}

	e.logger.Info("transfer executed",
		"transfer_id", record.ID,
		"sender", record.Sender,
		"recipient", record.Recipient,
		"amount", record.Amount.String(),
	)

	if e.publisher != nil {
		e.publisher.PublishTransferExecuted(ctx, events.TransferExecuted{
			ID:         record.ID,
			Sender:     record.Sender,
			Recipient:  record.Recipient,
			Amount:     record.Amount,
			OccurredAt: record.CreatedAt,
		})
	}

	return record, nil
}

func (e *Engine) validateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !e.maxAmount.IsZero() && amount.GreaterThan(e.maxAmount) {
		return ErrInvalidAmount
	}
	if amount.Exponent() < -2 {
		return ErrInvalidAmount
	}
	return nil
}

// HistoryEntry is one row of an account's transfer history, amount signed
// from that account's point of view: negative for outgoing, positive for
// incoming.
type HistoryEntry struct {
	ID           string          `json:"id"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Timestamp    time.Time       `json:"timestamp"`
}

// History returns the account's transfers, newest first.
func (e *Engine) History(ctx context.Context, email string) ([]HistoryEntry, error) {
	email = NormalizeEmail(email)

	records, err := e.store.ListTransfers(ctx, email)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entry := HistoryEntry{
			ID:        rec.ID.String(),
			Timestamp: rec.CreatedAt,
		}
		if rec.Sender == email {
			entry.Counterparty = rec.Recipient
			entry.Amount = rec.Amount.Neg()
		} else {
			entry.Counterparty = rec.Sender
			entry.Amount = rec.Amount
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// NormalizeEmail lowercases and trims an email so lookups and lock ordering
// see one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
