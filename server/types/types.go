// Package types provides shared types for the server package and its subpackages.
package types

import (
	"time"

	"github.com/nomis52/golaunch/buildinfo"
)

// ServerProperties holds metadata about the running launcher instance.
type ServerProperties struct {
	Build     buildinfo.Properties `json:"build"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
	// DeployConfig is the path the deployment types were loaded from.
	DeployConfig string `json:"deploy_config"`
	// ConfigLoadedAt is when the deployment types were last (re)loaded.
	ConfigLoadedAt time.Time `json:"config_loaded_at"`
	// NextProbe is the next scheduled cluster probe, if probing is enabled.
	NextProbe *time.Time `json:"next_probe,omitempty"`
}
