package compose

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// DaemonChecker verifies that the Docker Engine API is reachable before a
// compose command is started.
type DaemonChecker struct {
	inner *client.Client
}

// NewDaemonChecker creates a checker using the DOCKER_HOST environment
// defaults, or host when non-empty. No connection is made until Ping.
func NewDaemonChecker(host string) (*DaemonChecker, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DaemonChecker{inner: inner}, nil
}

// Ping returns an error if the daemon does not answer.
func (d *DaemonChecker) Ping(ctx context.Context) error {
	if d == nil || d.inner == nil {
		return fmt.Errorf("docker client not initialized")
	}
	ping, err := d.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases the underlying client.
func (d *DaemonChecker) Close() error {
	if d == nil || d.inner == nil {
		return nil
	}
	return d.inner.Close()
}
