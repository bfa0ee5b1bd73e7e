// Package stream delivers run records to HTTP clients as Server-Sent Events
// or WebSocket messages. Both transports implement runner.Emitter.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nomis52/golaunch/server/runner"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSE writes records as Server-Sent Events.
type SSE struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	logger  *slog.Logger
	closed  bool
}

// NewSSE prepares w for an event stream and writes the response headers.
// The server's write timeout is lifted for the response since streams
// outlive it.
func NewSSE(w http.ResponseWriter, logger *slog.Logger) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("failed to clear write deadline", "error", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSE{writer: w, flusher: flusher, logger: logger}, nil
}

// Emit writes one record as a data event.
func (s *SSE) Emit(rec runner.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return s.write("data: " + string(payload) + "\n\n")
}

// Heartbeat writes a comment frame.
func (s *SSE) Heartbeat() error {
	return s.write(": keepalive\n\n")
}

// Close marks the stream closed; later writes fail with io.EOF.
func (s *SSE) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *SSE) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.EOF
	}
	if _, err := io.WriteString(s.writer, frame); err != nil {
		s.closed = true
		s.logger.Debug("sse write failed", "error", err)
		return err
	}
	s.flusher.Flush()
	return nil
}
