package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
	// DefaultPushInterval is how often Run pushes buffered values.
	DefaultPushInterval = 30 * time.Second
)

// PushRegistry implements Registry for push-based metrics collection.
// Metric updates only change buffered values; Push sends every series in
// one remote write request.
type PushRegistry struct {
	pusher *pusher
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:9090").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed with this value
	// followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Interval is how often Run pushes. Defaults to DefaultPushInterval.
	Interval time.Duration
	// Logger receives push failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultPushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &pusher{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		timeout:    timeout,
		interval:   interval,
		logger:     logger,
		all:        make(map[string]*series),
	}
	return &PushRegistry{pusher: p}
}

// Push sends the current value of every series.
func (r *PushRegistry) Push(ctx context.Context) error {
	return r.pusher.push(ctx)
}

// Run pushes on every interval until ctx is cancelled, then pushes once
// more so final values are not lost.
func (r *PushRegistry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pusher.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Push(ctx); err != nil {
				r.pusher.logger.Warn("failed to push metrics", "error", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.pusher.timeout)
			if err := r.Push(final); err != nil {
				r.pusher.logger.Warn("failed to push final metrics", "error", err)
			}
			cancel()
			return
		}
	}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{series: r.pusher.lookup(opts.Name, nil)}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{
		pusher: r.pusher,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{series: r.pusher.lookup(opts.Name, nil)}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{
		pusher: r.pusher,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// NewHistogramVec creates a new push-based HistogramVec. Only the _count and
// _sum series are pushed.
func (r *PushRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	return &pushHistogramVec{
		pusher: r.pusher,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// series is one buffered time series.
type series struct {
	name   string
	labels map[string]string

	mu    sync.Mutex
	value float64
}

func (s *series) set(v float64) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

func (s *series) add(v float64) {
	s.mu.Lock()
	s.value += v
	s.mu.Unlock()
}

func (s *series) load() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// pusher handles remote write to VictoriaMetrics/Prometheus.
type pusher struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	timeout    time.Duration
	interval   time.Duration
	logger     *slog.Logger

	mu  sync.Mutex
	all map[string]*series // protected by mu
}

// lookup returns the buffered series for name and labels, creating it on first use.
func (p *pusher) lookup(name string, labels prometheus.Labels) *series {
	key := name + "{" + labelsToKey(labels) + "}"

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.all[key]; ok {
		return s
	}
	s := &series{name: name, labels: labels}
	p.all[key] = s
	return s
}

// push sends every buffered series to the remote write endpoint.
func (p *pusher) push(ctx context.Context) error {
	p.mu.Lock()
	keys := make([]string, 0, len(p.all))
	for k := range p.all {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	all := make([]*series, 0, len(keys))
	for _, k := range keys {
		all = append(all, p.all[k])
	}
	p.mu.Unlock()

	if len(all) == 0 {
		return nil
	}

	now := time.Now()
	timeseries := make([]prompb.TimeSeries, 0, len(all))
	for _, s := range all {
		timeseries = append(timeseries, p.metricToTimeSeries(s.name, s.load(), s.labels, now))
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// metricToTimeSeries converts a metric to Prometheus TimeSeries format.
func (p *pusher) metricToTimeSeries(name string, value float64, labels map[string]string, at time.Time) prompb.TimeSeries {
	promLabels := make([]prompb.Label, 0, len(labels)+3)

	metricName := name
	if p.prefix != "" {
		metricName = p.prefix + "_" + name
	}
	promLabels = append(promLabels, prompb.Label{
		Name:  "__name__",
		Value: metricName,
	})

	if p.job != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "job",
			Value: p.job,
		})
	}
	if p.instance != "" {
		promLabels = append(promLabels, prompb.Label{
			Name:  "instance",
			Value: p.instance,
		})
	}

	for _, k := range sortedKeys(labels) {
		promLabels = append(promLabels, prompb.Label{
			Name:  k,
			Value: labels[k],
		})
	}

	return prompb.TimeSeries{
		Labels: promLabels,
		Samples: []prompb.Sample{{
			Value:     value,
			Timestamp: at.UnixMilli(),
		}},
	}
}

// pushGauge implements Gauge for push mode.
type pushGauge struct {
	series *series
}

func (g *pushGauge) Set(v float64) {
	g.series.set(v)
}

// pushGaugeVec implements GaugeVec for push mode.
type pushGaugeVec struct {
	pusher *pusher
	name   string
	labels []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{series: g.pusher.lookup(g.name, labels)}
}

// pushCounter implements Counter for push mode.
type pushCounter struct {
	series *series
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.series.add(v)
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	pusher *pusher
	name   string
	labels []string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{series: c.pusher.lookup(c.name, labels)}
}

// pushHistogram implements Observer for push mode.
type pushHistogram struct {
	count *series
	sum   *series
}

func (h *pushHistogram) Observe(v float64) {
	h.count.add(1)
	h.sum.add(v)
}

// pushHistogramVec implements HistogramVec for push mode.
type pushHistogramVec struct {
	pusher *pusher
	name   string
	labels []string
}

func (h *pushHistogramVec) With(labels prometheus.Labels) Observer {
	return &pushHistogram{
		count: h.pusher.lookup(h.name+"_count", labels),
		sum:   h.pusher.lookup(h.name+"_sum", labels),
	}
}

// labelsToKey creates a stable string key from labels for map lookup.
func labelsToKey(labels prometheus.Labels) string {
	var b strings.Builder
	for _, k := range sortedKeys(labels) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
