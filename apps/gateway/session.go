package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/auth"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/registry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from peer. Clients submit messages over
	// HTTP, not over this socket, so inbound traffic is control-only.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// connState is the per-connection lifecycle, driven by transport events.
type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

var errSessionClosed = errors.New("session closed")
var errSendBufferFull = errors.New("send buffer full")

// Session is one live websocket connection. It implements registry.Session;
// the fanout dispatcher pushes serialized messages through Send while the
// write pump owns the actual socket writes.
type Session struct {
	gw     *Gateway
	conn   *websocket.Conn
	send   chan []byte
	connID int64
	userID string

	mu    sync.Mutex
	state connState
}

func (s *Session) ID() int64      { return s.connID }
func (s *Session) UserID() string { return s.userID }

// Send queues payload for the write pump. It fails when the session is
// closed or the peer is too slow to drain its buffer; the caller treats
// either as an isolated delivery failure.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return errSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// close transitions to Closed exactly once and releases the write pump.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed
	close(s.send)
}

// readPump consumes frames until the peer disconnects, then tears the
// session down. Inbound frames carry no application data; reading them keeps
// ping/pong liveness running and surfaces the close event.
func (s *Session) readPump() {
	defer func() {
		s.gw.drop(s)
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("gateway: read error", zap.Int64("connId", s.connID), zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps queued messages to the websocket connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs authenticates the request, upgrades it, and registers the session.
func serveWs(gw *Gateway, w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		// Query param fallback (standard for some WS clients)
		tokenString = r.URL.Query().Get("token")
	}

	if tokenString == "" {
		logger.Error("gateway: unauthorized, no token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(auth.BearerToken(tokenString))
	if err != nil {
		logger.Error("gateway: unauthorized, invalid token", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("gateway: upgrade failed", zap.Error(err))
		return
	}

	sess := &Session{
		gw:     gw,
		conn:   conn,
		send:   make(chan []byte, 256),
		connID: gw.ids.Generate(),
		userID: claims.UserID,
		state:  stateConnecting,
	}
	gw.admit(sess)

	go sess.writePump()
	go sess.readPump()
}

// Ensure Session keeps satisfying the registry contract.
var _ registry.Session = (*Session)(nil)
