package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nomis52/golaunch/server/runner"
)

// DeployStreamHandler starts a deployment, or joins the running one, and
// streams its log as server-sent events.
type DeployStreamHandler struct {
	logger   *slog.Logger
	deployer Deployer
}

// NewDeployStreamHandler creates a new DeployStreamHandler.
func NewDeployStreamHandler(logger *slog.Logger, deployer Deployer) *DeployStreamHandler {
	return &DeployStreamHandler{
		logger:   logger,
		deployer: deployer,
	}
}

// ServeHTTP implements http.Handler.
func (h *DeployStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	serveSSE(w, r, h.logger, func(ctx context.Context, out runner.Emitter) error {
		return h.deployer.Deploy(ctx, req, out)
	})
}

// DeployHandler handles POST /deploy: a dry run, or a deployment that is
// run to completion before a single JSON response is written.
type DeployHandler struct {
	logger   *slog.Logger
	deployer Deployer
	// forceDryRun turns every request into a dry run.
	forceDryRun bool
}

// NewDeployHandler creates a new DeployHandler.
func NewDeployHandler(logger *slog.Logger, deployer Deployer, forceDryRun bool) *DeployHandler {
	return &DeployHandler{
		logger:      logger,
		deployer:    deployer,
		forceDryRun: forceDryRun,
	}
}

// ServeHTTP implements http.Handler.
func (h *DeployHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if req.DryRun || h.forceDryRun {
		h.dryRun(w, req)
		return
	}

	result := h.deployer.DeploySync(r.Context(), req)
	if result.Status >= http.StatusInternalServerError {
		h.logger.Warn("synchronous deployment failed", "error", result.Error)
	}
	writeJSON(w, result.Status, result)
}

func (h *DeployHandler) dryRun(w http.ResponseWriter, req *runner.Request) {
	result, err := h.deployer.DryRun(req)
	switch {
	case errors.Is(err, runner.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "API key or input data is required"})
	case errors.Is(err, runner.ErrConfig):
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "No deployment configured"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// UninstallHandler runs the uninstall commands and streams their log as
// server-sent events.
type UninstallHandler struct {
	logger      *slog.Logger
	uninstaller Uninstaller
}

// NewUninstallHandler creates a new UninstallHandler.
func NewUninstallHandler(logger *slog.Logger, uninstaller Uninstaller) *UninstallHandler {
	return &UninstallHandler{
		logger:      logger,
		uninstaller: uninstaller,
	}
}

// ServeHTTP implements http.Handler.
func (h *UninstallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveSSE(w, r, h.logger, h.uninstaller.Uninstall)
}
