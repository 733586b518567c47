package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Session is one WebSocket connection bound to an account. Outbound messages
// go through a buffered channel so a slow client never blocks the hub.
type Session struct {
	email     string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func NewSession(email string, conn *websocket.Conn) *Session {
	return &Session{
		email: email,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
}

func (s *Session) Email() string {
	return s.email
}

// enqueue hands a message to the write pump. It reports false when the
// buffer is full or the session is already closed.
func (s *Session) enqueue(msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// Run drives both pumps and blocks until the connection drops. The caller
// must have registered the session with the hub first; Run unregisters it
// on the way out.
func (s *Session) Run(hub *Hub) {
	defer func() {
		hub.Unregister(s)
		_ = s.conn.Close()
	}()

	go s.writePump()
	s.readPump()
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Push-only: inbound frames are drained and dropped.
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, open := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
