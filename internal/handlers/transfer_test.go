package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/libs/auth"

	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
	"github.com/liorefaelbe/BePay-BankApp/internal/transfer"
)

type fakeEngine struct {
	executeErr error
	record     storage.TransferRecord
	entries    []transfer.HistoryEntry
	historyErr error

	gotSender    string
	gotRecipient string
	gotAmount    decimal.Decimal
}

func (f *fakeEngine) Execute(_ context.Context, sender, recipient string, amount decimal.Decimal) (storage.TransferRecord, error) {
	f.gotSender, f.gotRecipient, f.gotAmount = sender, recipient, amount
	if f.executeErr != nil {
		return storage.TransferRecord{}, f.executeErr
	}
	return f.record, nil
}

func (f *fakeEngine) History(_ context.Context, _ string) ([]transfer.HistoryEntry, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.entries, nil
}

func newTransferRouter(engine Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewTransferHandler(engine, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(auth.ContextEmailKey, "alice@example.com")
	})
	router.POST("/transfer", handler.Transfer)
	router.GET("/transactions/history", handler.History)
	return router
}

func postTransfer(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transfer", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTransferSuccess(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := &fakeEngine{
		record: storage.TransferRecord{
			ID:        uuid.New(),
			Sender:    "alice@example.com",
			Recipient: "bob@example.com",
			Amount:    decimal.RequireFromString("30.50"),
			CreatedAt: created,
		},
	}
	router := newTransferRouter(engine)

	rec := postTransfer(t, router, `{"toEmail": "bob@example.com", "amount": 30.50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if engine.gotSender != "alice@example.com" || engine.gotRecipient != "bob@example.com" {
		t.Fatalf("engine called with sender=%q recipient=%q", engine.gotSender, engine.gotRecipient)
	}
	if !engine.gotAmount.Equal(decimal.RequireFromString("30.50")) {
		t.Fatalf("engine amount = %s", engine.gotAmount)
	}

	body := decodeBody(t, rec)
	tr := body["transfer"].(map[string]any)
	if tr["to"] != "bob@example.com" {
		t.Fatalf("to = %v", tr["to"])
	}
	if tr["timestamp"] != "2025-06-01T12:00:00Z" {
		t.Fatalf("timestamp = %v", tr["timestamp"])
	}
}

func TestTransferAcceptsStringAmount(t *testing.T) {
	engine := &fakeEngine{record: storage.TransferRecord{Recipient: "bob@example.com"}}
	router := newTransferRouter(engine)

	rec := postTransfer(t, router, `{"toEmail": "bob@example.com", "amount": "12.25"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !engine.gotAmount.Equal(decimal.RequireFromString("12.25")) {
		t.Fatalf("engine amount = %s", engine.gotAmount)
	}
}

func TestTransferErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{transfer.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
		{transfer.ErrSelfTransfer, http.StatusBadRequest, "SELF_TRANSFER"},
		{transfer.ErrRecipientNotFound, http.StatusNotFound, "RECIPIENT_NOT_FOUND"},
		{storage.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
		{storage.ErrAccountNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
	}

	for _, tc := range cases {
		router := newTransferRouter(&fakeEngine{executeErr: tc.err})
		rec := postTransfer(t, router, `{"toEmail": "bob@example.com", "amount": 10}`)
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		if decodeBody(t, rec)["code"] != tc.code {
			t.Fatalf("%v: body = %s", tc.err, rec.Body.String())
		}
	}
}

func TestTransferMalformedBody(t *testing.T) {
	router := newTransferRouter(&fakeEngine{})

	rec := postTransfer(t, router, `{"toEmail": "bob@example.com", "amount": "not-a-number"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHistoryResponse(t *testing.T) {
	engine := &fakeEngine{
		entries: []transfer.HistoryEntry{
			{
				ID:           uuid.NewString(),
				Counterparty: "carol@example.com",
				Amount:       decimal.NewFromInt(25),
				Timestamp:    time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
			},
			{
				ID:           uuid.NewString(),
				Counterparty: "bob@example.com",
				Amount:       decimal.NewFromInt(-10),
				Timestamp:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			},
		},
	}
	router := newTransferRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/transactions/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Fatalf("count = %v", body["count"])
	}
	transactions := body["transactions"].([]any)
	first := transactions[0].(map[string]any)
	if first["counterparty"] != "carol@example.com" || first["amount"] != "25" {
		t.Fatalf("first entry = %v", first)
	}
	second := transactions[1].(map[string]any)
	if second["amount"] != "-10" {
		t.Fatalf("second entry = %v", second)
	}
}

func TestHistoryEmpty(t *testing.T) {
	router := newTransferRouter(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/transactions/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(0) {
		t.Fatalf("count = %v", body["count"])
	}
	if _, ok := body["transactions"].([]any); !ok {
		t.Fatalf("transactions not an array: %s", rec.Body.String())
	}
}
