// Package handlers provides HTTP handlers for the launcher server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"

	"github.com/nomis52/golaunch/config"
	"github.com/nomis52/golaunch/server/runner"
	"github.com/nomis52/golaunch/server/types"
)

// DeployConfigProvider provides access to the current deployment types.
type DeployConfigProvider interface {
	// DeployConfig returns the loaded deployment types, or nil if none loaded.
	DeployConfig() *config.Config
	// DeployType returns the configured deployment type override, if any.
	DeployType() string
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// RunStatusProvider provides access to run status.
type RunStatusProvider interface {
	Status() runner.RunStatus
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunStatus
}

// DeploymentProvider provides access to the persisted deployment record.
type DeploymentProvider interface {
	Deployment() runner.DeploymentRecord
}

// HelpProvider provides the help document shown by the UI.
type HelpProvider interface {
	HelpContent() config.HelpContent
}

// StateProvider aggregates everything reported by GET /state.
type StateProvider interface {
	RunStatusProvider
	DeploymentProvider
	ClusterStatus() *runner.ClusterStatus
	Properties() types.ServerProperties
}

// Follower streams the current or last operation's log.
type Follower interface {
	Follow(ctx context.Context, out runner.Emitter) error
}

// Deployer starts deployments.
type Deployer interface {
	Deploy(ctx context.Context, req *runner.Request, out runner.Emitter) error
	DeploySync(ctx context.Context, req *runner.Request) runner.SyncResult
	DryRun(req *runner.Request) (runner.DryRunResult, error)
}

// Uninstaller removes the recorded deployment.
type Uninstaller interface {
	Uninstall(ctx context.Context, out runner.Emitter) error
}
