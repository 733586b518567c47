// Package events carries the domain events emitted by the transfer engine
// and fans them out to in-process subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventTypeTransferExecuted = "transfer.executed"

// TransferExecuted is published after a transfer has committed. Subscribers
// observe money movement, they can never veto it.
type TransferExecuted struct {
	ID         uuid.UUID       `json:"id"`
	Sender     string          `json:"sender"`
	Recipient  string          `json:"recipient"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type Subscriber interface {
	HandleTransferExecuted(ctx context.Context, event TransferExecuted)
}

// Bus delivers events to every registered subscriber in order. A subscriber
// that panics or blocks affects the caller, so handlers must be quick and
// swallow their own failures.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

func (b *Bus) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

func (b *Bus) PublishTransferExecuted(ctx context.Context, event TransferExecuted) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.HandleTransferExecuted(ctx, event)
	}
}
