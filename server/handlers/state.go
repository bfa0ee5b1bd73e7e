package handlers

import (
	"net/http"

	"github.com/nomis52/golaunch/server/runner"
	"github.com/nomis52/golaunch/server/types"
)

// StateResponse combines the persisted and in-memory deployment state.
type StateResponse struct {
	Persistent runner.DeploymentRecord `json:"persistent"`
	Runtime    runner.RunStatus        `json:"runtime"`
	// Cluster is the last background probe, if one has run.
	Cluster *runner.ClusterStatus  `json:"cluster"`
	Server  types.ServerProperties `json:"server"`
}

// StateHandler handles requests for GET /state.
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new StateHandler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{
		Persistent: h.provider.Deployment(),
		Runtime:    h.provider.Status(),
		Cluster:    h.provider.ClusterStatus(),
		Server:     h.provider.Properties(),
	})
}
