package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/internal/events"
	"github.com/liorefaelbe/BePay-BankApp/internal/notify"
	"github.com/liorefaelbe/BePay-BankApp/internal/security"
)

func newWSServer(t *testing.T, hub *notify.Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewWSHandler(hub, []byte("test-secret"), nil)
	router := gin.New()
	router.GET("/ws", handler.Serve)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func wsToken(t *testing.T, email string) string {
	t.Helper()
	token, err := security.NewAccessToken(email, true, []byte("test-secret"), time.Hour, time.Now(), "bepay-test")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestWSRejectsMissingOrInvalidToken(t *testing.T) {
	server := newWSServer(t, notify.NewHub(nil))

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/ws?token=not-a-jwt")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid token status = %d", resp.StatusCode)
	}
}

func TestWSReceivesTransferNotification(t *testing.T) {
	hub := notify.NewHub(nil)
	server := newWSServer(t, hub)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + wsToken(t, "bob@example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the session to land in the hub before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SessionCount("bob@example.com") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.HandleTransferExecuted(context.Background(), events.TransferExecuted{
		ID:         uuid.New(),
		Sender:     "alice@example.com",
		Recipient:  "bob@example.com",
		Amount:     decimal.NewFromInt(42),
		OccurredAt: time.Now().UTC(),
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var n notify.TransferNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Type != notify.NotificationTypeTransferReceived {
		t.Fatalf("type = %q", n.Type)
	}
	if n.From != "alice@example.com" || n.Amount != "42" {
		t.Fatalf("notification = %+v", n)
	}
}
