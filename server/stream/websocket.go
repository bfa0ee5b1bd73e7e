package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nomis52/golaunch/server/runner"
)

const wsWriteTimeout = 10 * time.Second

// NewUpgrader returns the upgrader used for log streams. The launcher is
// served from arbitrary hostnames so any origin is accepted.
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// WebSocket writes records as JSON text messages. Heartbeats are ping
// control frames.
type WebSocket struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *slog.Logger
	closed bool
}

// UpgradeWebSocket upgrades the request. On failure the upgrader has already
// replied to the client.
func UpgradeWebSocket(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*WebSocket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocket{conn: conn, logger: logger}, nil
}

// Watch returns a context that is cancelled when the client goes away. It
// reads and discards client messages so control frames are processed.
func (s *WebSocket) Watch(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx
}

// Emit writes one record as a text message.
func (s *WebSocket) Emit(rec runner.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.EOF
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteJSON(rec); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

// Heartbeat sends a ping.
func (s *WebSocket) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.EOF
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

// Close sends a normal closure and closes the connection.
func (s *WebSocket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
	_ = s.conn.Close()
}

func (s *WebSocket) fail(err error) {
	s.closed = true
	s.logger.Debug("websocket write failed", "error", err)
	_ = s.conn.Close()
}
