package runner

import (
	"context"
	"time"

	"github.com/nomis52/golaunch/clients/cluster"
)

// ClusterStatus is the result of the last background cluster probe.
type ClusterStatus struct {
	Namespace string    `json:"namespace"`
	CheckedAt time.Time `json:"checked_at"`
	Pods      []string  `json:"pods"`
	Error     string    `json:"error,omitempty"`
}

// ProbeCluster queries pod status for the recorded deployment's namespace.
// It does nothing while an operation is running or when nothing is deployed,
// so it is safe to call from a schedule.
func (r *Runner) ProbeCluster(ctx context.Context) error {
	if r.IsRunning() {
		r.logger.Debug("skipping cluster probe, operation running")
		return nil
	}
	rec := r.store.Load()
	if !rec.Deployed || rec.Namespace == "" {
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, r.settings.StatusTimeout)
	defer cancel()

	text, err := r.cluster.Status(pctx, rec.Namespace, nil)
	status := &ClusterStatus{
		Namespace: rec.Namespace,
		CheckedAt: time.Now(),
		Pods:      cluster.Rows(text, 0),
	}
	if err != nil {
		status.Error = err.Error()
		r.logger.Warn("cluster probe failed", "namespace", rec.Namespace, "error", err)
	} else {
		r.metrics.setClusterPods(rec.Namespace, len(status.Pods))
	}

	r.probeMu.Lock()
	r.probe = status
	r.probeMu.Unlock()
	return err
}

// ClusterStatus returns the last probe result, or nil if none has run.
func (r *Runner) ClusterStatus() *ClusterStatus {
	r.probeMu.Lock()
	defer r.probeMu.Unlock()

	if r.probe == nil {
		return nil
	}
	c := *r.probe
	return &c
}
