package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler reloads the deployment types and help content from disk.
// A running operation keeps the types it started with.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reloading deployment configuration")

	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("failed to reload deployment configuration", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to reload deployment configuration: " + err.Error(),
		})
		return
	}

	h.logger.Info("deployment configuration reloaded")
	w.WriteHeader(http.StatusNoContent)
}
