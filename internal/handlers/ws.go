package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/liorefaelbe/BePay-BankApp/libs/auth"

	"github.com/liorefaelbe/BePay-BankApp/internal/notify"
)

type WSHandler struct {
	hub      *notify.Hub
	secret   []byte
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *notify.Hub, secret []byte, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub:    hub,
		secret: secret,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser frontend runs on a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve authenticates the JWT before the upgrade, so the session identity
// comes from the signed token rather than anything the client sends over
// the socket.
func (h *WSHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = auth.ExtractBearer(c.GetHeader("Authorization"))
	}
	if token == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing token")
		return
	}

	claims, err := auth.ParseJWT(token, h.secret)
	if err != nil || claims.Subject == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := notify.NewSession(claims.Subject, conn)
	h.hub.Register(session)
	session.Run(h.hub)
}
