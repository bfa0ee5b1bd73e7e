package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nomis52/golaunch/server/stream"
)

// LogsHandler streams the current or last operation's log as server-sent
// events, following it until it ends.
type LogsHandler struct {
	logger   *slog.Logger
	follower Follower
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(logger *slog.Logger, follower Follower) *LogsHandler {
	return &LogsHandler{
		logger:   logger,
		follower: follower,
	}
}

// ServeHTTP implements http.Handler.
func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveSSE(w, r, h.logger, h.follower.Follow)
}

// LogsWebSocketHandler streams the same records as LogsHandler over a
// WebSocket.
type LogsWebSocketHandler struct {
	logger   *slog.Logger
	follower Follower
	upgrader *websocket.Upgrader
}

// NewLogsWebSocketHandler creates a new LogsWebSocketHandler.
func NewLogsWebSocketHandler(logger *slog.Logger, follower Follower) *LogsWebSocketHandler {
	return &LogsWebSocketHandler{
		logger:   logger,
		follower: follower,
		upgrader: stream.NewUpgrader(),
	}
}

// ServeHTTP implements http.Handler.
func (h *LogsWebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := stream.UpgradeWebSocket(h.upgrader, w, r, h.logger)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	ctx := ws.Watch(r.Context())
	if err := h.follower.Follow(ctx, ws); err != nil {
		logStreamError(h.logger, err)
	}
}
