// Package notify pushes realtime notifications to connected WebSocket
// clients. Delivery is fire-and-forget: an account with no open sessions
// simply misses the notification.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liorefaelbe/BePay-BankApp/internal/events"
)

const NotificationTypeTransferReceived = "TRANSFER_RECEIVED"

type TransferNotification struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Amount    string `json:"amount"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Hub tracks live sessions per account email and routes transfer events to
// the recipient's sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]map[*Session]struct{}),
		logger:   logger,
	}
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.email]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.email] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	set, ok := h.sessions[s.email]
	if ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.email)
		}
	}
	h.mu.Unlock()

	s.close()
}

// SessionCount reports the number of open sessions for an account.
func (h *Hub) SessionCount(email string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[email])
}

// HandleTransferExecuted notifies the recipient's sessions. A session whose
// buffer is full is dropped rather than allowed to stall the others.
func (h *Hub) HandleTransferExecuted(_ context.Context, event events.TransferExecuted) {
	notification := TransferNotification{
		Type:      NotificationTypeTransferReceived,
		From:      event.Sender,
		Amount:    event.Amount.String(),
		Message:   fmt.Sprintf("You received $%s from %s", event.Amount.String(), event.Sender),
		Timestamp: event.OccurredAt.UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		h.logger.Error("marshal notification failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[event.Recipient]))
	for s := range h.sessions[event.Recipient] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(payload) {
			h.logger.Warn("dropping slow notification session", "email", s.email)
			h.Unregister(s)
		}
	}
}
