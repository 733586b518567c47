package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/libs/auth"

	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
	"github.com/liorefaelbe/BePay-BankApp/internal/transfer"
)

// Engine is the transfer surface the handlers call into.
type Engine interface {
	Execute(ctx context.Context, sender, recipient string, amount decimal.Decimal) (storage.TransferRecord, error)
	History(ctx context.Context, email string) ([]transfer.HistoryEntry, error)
}

type TransferHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewTransferHandler(engine Engine, logger *slog.Logger) *TransferHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferHandler{engine: engine, logger: logger}
}

type transferRequest struct {
	ToEmail string          `json:"toEmail"`
	Amount  decimal.Decimal `json:"amount"`
}

func (h *TransferHandler) Transfer(c *gin.Context) {
	sender := c.GetString(auth.ContextEmailKey)

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_AMOUNT", "invalid request body")
		return
	}

	record, err := h.engine.Execute(c.Request.Context(), sender, req.ToEmail, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, transfer.ErrInvalidAmount):
			respondError(c, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be positive with at most two decimal places")
		case errors.Is(err, transfer.ErrSelfTransfer):
			respondError(c, http.StatusBadRequest, "SELF_TRANSFER", "cannot transfer to your own account")
		case errors.Is(err, transfer.ErrRecipientNotFound):
			respondError(c, http.StatusNotFound, "RECIPIENT_NOT_FOUND", "recipient not found")
		case errors.Is(err, storage.ErrInsufficientFunds):
			respondError(c, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "insufficient funds")
		case errors.Is(err, storage.ErrAccountNotFound):
			respondError(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
		default:
			h.logger.Error("transfer failed", "error", err)
			respondError(c, http.StatusInternalServerError, "INTERNAL", "transfer failed")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Transfer completed",
		"transfer": gin.H{
			"to":        record.Recipient,
			"amount":    record.Amount,
			"timestamp": record.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

func (h *TransferHandler) History(c *gin.Context) {
	email := c.GetString(auth.ContextEmailKey)

	entries, err := h.engine.History(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("history failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "could not load history")
		return
	}
	if entries == nil {
		entries = []transfer.HistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": entries,
		"count":        len(entries),
	})
}
