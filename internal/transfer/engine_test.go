package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/internal/events"
	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	transfers []storage.TransferRecord
}

func newFakeStore(balances map[string]decimal.Decimal) *fakeStore {
	copied := make(map[string]decimal.Decimal, len(balances))
	for k, v := range balances {
		copied[k] = v
	}
	return &fakeStore{balances: copied}
}

func (f *fakeStore) GetAccountByEmail(_ context.Context, email string) (*storage.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[email]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	return &storage.Account{Email: email, Balance: balance, Verified: true}, nil
}

func (f *fakeStore) ExecuteTransfer(_ context.Context, sender, recipient string, amount decimal.Decimal) (storage.TransferRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	senderBalance, ok := f.balances[sender]
	if !ok {
		return storage.TransferRecord{}, storage.ErrAccountNotFound
	}
	recipientBalance, ok := f.balances[recipient]
	if !ok {
		return storage.TransferRecord{}, storage.ErrAccountNotFound
	}
	if senderBalance.LessThan(amount) {
		return storage.TransferRecord{}, storage.ErrInsufficientFunds
	}

	f.balances[sender] = senderBalance.Sub(amount)
	f.balances[recipient] = recipientBalance.Add(amount)

	record := storage.TransferRecord{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	f.transfers = append(f.transfers, record)
	return record, nil
}

func (f *fakeStore) ListTransfers(_ context.Context, email string) ([]storage.TransferRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var records []storage.TransferRecord
	for i := len(f.transfers) - 1; i >= 0; i-- {
		rec := f.transfers[i]
		if rec.Sender == email || rec.Recipient == email {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (f *fakeStore) total() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, b := range f.balances {
		sum = sum.Add(b)
	}
	return sum
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.TransferExecuted
}

func (f *fakePublisher) PublishTransferExecuted(_ context.Context, event events.TransferExecuted) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestEngine(store *fakeStore, pub Publisher) *Engine {
	return NewEngine(store, pub, decimal.NewFromInt(1_000_000), nil, nil)
}

func TestExecuteMovesFundsAndEmitsEvent(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(100),
		"bob@example.com":   decimal.NewFromInt(50),
	})
	pub := &fakePublisher{}
	engine := newTestEngine(store, pub)

	before := store.total()

	record, err := engine.Execute(context.Background(), "alice@example.com", "bob@example.com", decimal.RequireFromString("30.50"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !record.Amount.Equal(decimal.RequireFromString("30.50")) {
		t.Fatalf("unexpected record amount %s", record.Amount)
	}

	if !store.balances["alice@example.com"].Equal(decimal.RequireFromString("69.50")) {
		t.Fatalf("sender balance = %s", store.balances["alice@example.com"])
	}
	if !store.balances["bob@example.com"].Equal(decimal.RequireFromString("80.50")) {
		t.Fatalf("recipient balance = %s", store.balances["bob@example.com"])
	}
	if !store.total().Equal(before) {
		t.Fatalf("total balance changed: %s -> %s", before, store.total())
	}
	if pub.count() != 1 {
		t.Fatalf("expected 1 event, got %d", pub.count())
	}
	if pub.events[0].Sender != "alice@example.com" || pub.events[0].Recipient != "bob@example.com" {
		t.Fatalf("unexpected event %+v", pub.events[0])
	}
}

func TestExecuteNormalizesEmails(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(100),
		"bob@example.com":   decimal.NewFromInt(0),
	})
	engine := newTestEngine(store, nil)

	_, err := engine.Execute(context.Background(), "  Alice@Example.COM ", "BOB@example.com", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !store.balances["bob@example.com"].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("recipient balance = %s", store.balances["bob@example.com"])
	}
}

func TestExecuteRejectsInvalidAmounts(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(100),
		"bob@example.com":   decimal.NewFromInt(0),
	})
	pub := &fakePublisher{}
	engine := newTestEngine(store, pub)

	amounts := []string{"0", "-5", "1000000.01", "1.999"}
	for _, raw := range amounts {
		_, err := engine.Execute(context.Background(), "alice@example.com", "bob@example.com", decimal.RequireFromString(raw))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", raw, err)
		}
	}
	if !store.balances["alice@example.com"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sender balance changed on rejected transfer")
	}
	if pub.count() != 0 {
		t.Fatalf("rejected transfers must not emit events")
	}
}

func TestExecuteRejectsSelfTransfer(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(100),
	})
	engine := newTestEngine(store, nil)

	_, err := engine.Execute(context.Background(), "alice@example.com", "Alice@example.com", decimal.NewFromInt(5))
	if !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
	if !store.balances["alice@example.com"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance changed on self transfer")
	}
}

func TestExecuteUnknownRecipient(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(100),
	})
	engine := newTestEngine(store, nil)

	_, err := engine.Execute(context.Background(), "alice@example.com", "ghost@example.com", decimal.NewFromInt(5))
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
}

func TestExecuteInsufficientFundsLeavesBalancesAndEmitsNothing(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(10),
		"bob@example.com":   decimal.NewFromInt(5),
	})
	pub := &fakePublisher{}
	engine := newTestEngine(store, pub)

	_, err := engine.Execute(context.Background(), "alice@example.com", "bob@example.com", decimal.NewFromInt(11))
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !store.balances["alice@example.com"].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("sender balance changed on failed transfer")
	}
	if !store.balances["bob@example.com"].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("recipient balance changed on failed transfer")
	}
	if pub.count() != 0 {
		t.Fatalf("failed transfers must not emit events")
	}
}

func TestExecuteExactBalanceSucceeds(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(10),
		"bob@example.com":   decimal.NewFromInt(0),
	})
	engine := newTestEngine(store, nil)

	_, err := engine.Execute(context.Background(), "alice@example.com", "bob@example.com", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !store.balances["alice@example.com"].IsZero() {
		t.Fatalf("sender balance = %s, want 0", store.balances["alice@example.com"])
	}
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(1000),
		"bob@example.com":   decimal.NewFromInt(1000),
	})
	engine := newTestEngine(store, nil)
	before := store.total()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		sender, recipient := "alice@example.com", "bob@example.com"
		if i%2 == 0 {
			sender, recipient = recipient, sender
		}
		go func(sender, recipient string) {
			defer wg.Done()
			_, _ = engine.Execute(context.Background(), sender, recipient, decimal.NewFromInt(7))
		}(sender, recipient)
	}
	wg.Wait()

	if !store.total().Equal(before) {
		t.Fatalf("total balance changed: %s -> %s", before, store.total())
	}
}

func TestHistorySignsAmountsAndOrdersNewestFirst(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(100),
		"bob@example.com":   decimal.NewFromInt(100),
		"carol@example.com": decimal.NewFromInt(100),
	})
	engine := newTestEngine(store, nil)
	ctx := context.Background()

	if _, err := engine.Execute(ctx, "alice@example.com", "bob@example.com", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := engine.Execute(ctx, "carol@example.com", "alice@example.com", decimal.NewFromInt(25)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := engine.Execute(ctx, "bob@example.com", "carol@example.com", decimal.NewFromInt(3)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	entries, err := engine.History(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	// Newest first: the incoming 25 from carol, then the outgoing 10 to bob.
	if entries[0].Counterparty != "carol@example.com" || !entries[0].Amount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Counterparty != "bob@example.com" || !entries[1].Amount.Equal(decimal.NewFromInt(-10)) {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestHistoryEmptyAccount(t *testing.T) {
	store := newFakeStore(map[string]decimal.Decimal{
		"alice@example.com": decimal.NewFromInt(100),
	})
	engine := newTestEngine(store, nil)

	entries, err := engine.History(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(entries))
	}
}
