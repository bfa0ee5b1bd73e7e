package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nomis52/golaunch/server/runner"
	"github.com/nomis52/golaunch/server/stream"
)

// maxRequestBody bounds deploy request bodies.
const maxRequestBody = 1 << 20

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// decodeRequest reads a deploy request body. An empty body decodes to an
// empty request so that validation reports the missing fields.
func decodeRequest(w http.ResponseWriter, r *http.Request) (*runner.Request, error) {
	req := &runner.Request{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	req.Host = r.Host
	return req, nil
}

// serveSSE opens an event stream and hands it to fn. Errors from fn have
// already been reported to the client as records, so they are only logged.
func serveSSE(w http.ResponseWriter, r *http.Request, logger *slog.Logger, fn func(ctx context.Context, out runner.Emitter) error) {
	sse, err := stream.NewSSE(w, logger)
	if err != nil {
		logger.Error("cannot open event stream", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	defer sse.Close()

	if err := fn(r.Context(), sse); err != nil {
		logStreamError(logger, err)
	}
}

func logStreamError(logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		logger.Debug("client left the stream", "error", err)
	default:
		logger.Info("stream ended with error", "error", err)
	}
}
