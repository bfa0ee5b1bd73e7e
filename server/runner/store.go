package runner

import (
	"time"

	"github.com/nomis52/golaunch/config"
)

// DeploymentRecord describes the last successful deployment. It is written
// only when a deployment succeeds and removed by uninstall.
type DeploymentRecord struct {
	Deployed   bool             `json:"deployed"`
	Status     string           `json:"status,omitempty"`
	DeployType string           `json:"deploy_type,omitempty"`
	Version    string           `json:"version,omitempty"`
	DeployedAt *time.Time       `json:"deployed_at,omitempty"`
	Namespace  string           `json:"namespace,omitempty"`
	Services   []config.Service `json:"services,omitempty"`
}

// StateStore persists the DeploymentRecord.
type StateStore interface {
	// Load returns the stored record. A missing or unreadable record reads
	// as not deployed.
	Load() DeploymentRecord
	// Save replaces the stored record.
	Save(DeploymentRecord) error
	// Clear removes the stored record. Clearing an empty store is not an error.
	Clear() error
}
