package runner

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/golaunch/metrics"
)

// Metrics records run activity. A nil *Metrics records nothing.
type Metrics struct {
	runs        metrics.CounterVec
	duration    metrics.HistogramVec
	running     metrics.Gauge
	records     metrics.Counter
	deployed    metrics.Gauge
	clusterPods metrics.GaugeVec
}

// NewMetrics registers the runner metrics with reg.
func NewMetrics(reg metrics.Registry) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.runs, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_total",
		Help: "Finished operations by operation and final status.",
	}, []string{"operation", "status"}); err != nil {
		return nil, fmt.Errorf("runs_total: %w", err)
	}
	if m.duration, err = reg.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "run_duration_seconds",
		Help:    "Wall time of finished operations.",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900, 1800},
	}, []string{"operation"}); err != nil {
		return nil, fmt.Errorf("run_duration_seconds: %w", err)
	}
	if m.running, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "running",
		Help: "1 while an operation holds the run slot.",
	}); err != nil {
		return nil, fmt.Errorf("running: %w", err)
	}
	if m.records, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "log_records_total",
		Help: "Log records appended across all operations.",
	}); err != nil {
		return nil, fmt.Errorf("log_records_total: %w", err)
	}
	if m.deployed, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "deployed",
		Help: "1 when a successful deployment is recorded.",
	}); err != nil {
		return nil, fmt.Errorf("deployed: %w", err)
	}
	if m.clusterPods, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cluster_pods",
		Help: "Pods reported by the last cluster probe.",
	}, []string{"namespace"}); err != nil {
		return nil, fmt.Errorf("cluster_pods: %w", err)
	}
	return m, nil
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.running.Set(1)
}

func (m *Metrics) runFinished(status RunStatus) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.runs.With(prometheus.Labels{
		"operation": string(status.Operation),
		"status":    status.State.String(),
	}).Inc()
	m.duration.With(prometheus.Labels{"operation": string(status.Operation)}).Observe(status.Duration().Seconds())
}

func (m *Metrics) recordAppended() {
	if m == nil {
		return
	}
	m.records.Inc()
}

func (m *Metrics) setDeployed(deployed bool) {
	if m == nil {
		return
	}
	if deployed {
		m.deployed.Set(1)
	} else {
		m.deployed.Set(0)
	}
}

func (m *Metrics) setClusterPods(namespace string, n int) {
	if m == nil {
		return
	}
	m.clusterPods.With(prometheus.Labels{"namespace": namespace}).Set(float64(n))
}
