package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/liorefaelbe/BePay-BankApp/libs/auth"

	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
	"github.com/liorefaelbe/BePay-BankApp/internal/transfer"
)

type UserHandler struct {
	store  AccountStore
	engine Engine
	logger *slog.Logger
}

func NewUserHandler(store AccountStore, engine Engine, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{store: store, engine: engine, logger: logger}
}

func (h *UserHandler) Me(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":     account.Email,
		"balance":   account.Balance,
		"createdAt": account.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *UserHandler) Dashboard(c *gin.Context) {
	account, ok := h.currentAccount(c)
	if !ok {
		return
	}

	entries, err := h.engine.History(c.Request.Context(), account.Email)
	if err != nil {
		h.logger.Error("history failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "could not load dashboard")
		return
	}
	if entries == nil {
		entries = []transfer.HistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"account": gin.H{
			"email":     account.Email,
			"balance":   account.Balance,
			"createdAt": account.CreatedAt.UTC().Format(time.RFC3339),
		},
		"transactions": entries,
		"count":        len(entries),
	})
}

func (h *UserHandler) currentAccount(c *gin.Context) (*storage.Account, bool) {
	email := c.GetString(auth.ContextEmailKey)

	account, err := h.store.GetAccountByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
			return nil, false
		}
		h.logger.Error("account lookup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "could not load account")
		return nil, false
	}
	return account, true
}
