// Package runner runs deployments and uninstalls for the launcher server.
//
// The runner handles:
//   - Admitting exactly one operation at a time (single flight)
//   - Running pre-commands, the main command and post-commands
//   - Polling cluster status while the main command runs
//   - Recording every log record so late observers can replay and follow
//   - Persisting the last successful deployment
//
// The first caller to start a deployment becomes the leader and executes it,
// streaming records to its own Emitter as they are appended to the Tracker.
// Callers that arrive while a run is in progress become followers: they
// replay the log from the beginning and then poll for new records until the
// run ends. Followers never start processes.
//
// # Example
//
//	r := runner.New(logger, provider, runner.WithStateStore(store))
//
//	// Stream a deployment to an SSE client
//	if err := r.Deploy(ctx, req, sseEmitter); err != nil {
//	    logger.Warn("deployment did not succeed", "error", err)
//	}
//
//	// Observe whatever is running
//	status := r.Status()
//	if status.IsRunning {
//	    _ = r.Follow(ctx, otherEmitter)
//	}
package runner

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nomis52/golaunch/clients/cluster"
	"github.com/nomis52/golaunch/clients/compose"
	"github.com/nomis52/golaunch/clients/hostinfo"
	"github.com/nomis52/golaunch/clients/shell"
	"github.com/nomis52/golaunch/config"
)

// Settings controls timing and output limits.
type Settings struct {
	// PollInterval is how often cluster status is polled during the main command.
	PollInterval time.Duration
	// MonitorTimeout bounds how long the main command is observed.
	MonitorTimeout time.Duration
	// StatusTimeout bounds one cluster status query.
	StatusTimeout time.Duration
	// FollowInterval is how often followers check for new records.
	FollowInterval time.Duration
	// CommandTimeout bounds each synchronous command.
	CommandTimeout time.Duration
	// GracePeriod is how long to wait for an exit status after MonitorTimeout.
	GracePeriod time.Duration
	// MaxPods caps the pod records emitted per status change.
	MaxPods int
	// TailLines is the number of output lines repeated when the main command fails.
	TailLines int
}

// DefaultSettings returns the production timings.
func DefaultSettings() Settings {
	return Settings{
		PollInterval:   5 * time.Second,
		MonitorTimeout: 15 * time.Minute,
		StatusTimeout:  10 * time.Second,
		FollowInterval: time.Second,
		CommandTimeout: 10 * time.Minute,
		GracePeriod:    5 * time.Second,
		MaxPods:        15,
		TailLines:      20,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.MonitorTimeout <= 0 {
		s.MonitorTimeout = d.MonitorTimeout
	}
	if s.StatusTimeout <= 0 {
		s.StatusTimeout = d.StatusTimeout
	}
	if s.FollowInterval <= 0 {
		s.FollowInterval = d.FollowInterval
	}
	if s.CommandTimeout <= 0 {
		s.CommandTimeout = d.CommandTimeout
	}
	if s.GracePeriod <= 0 {
		s.GracePeriod = d.GracePeriod
	}
	if s.MaxPods <= 0 {
		s.MaxPods = d.MaxPods
	}
	if s.TailLines <= 0 {
		s.TailLines = d.TailLines
	}
	return s
}

// ConfigProvider provides access to the current deployment configuration.
type ConfigProvider interface {
	// DeployConfig returns the loaded deployment types, or nil if none loaded.
	DeployConfig() *config.Config
	// DeployType returns the configured deployment type override, if any.
	DeployType() string
}

// HostResolver finds the host's public IP address. It returns "" when unknown.
type HostResolver interface {
	ResolveHostIP(ctx context.Context) string
}

// DaemonChecker reports whether the container engine is reachable.
type DaemonChecker interface {
	Ping(ctx context.Context) error
}

// Runner manages deployment and uninstall execution.
type Runner struct {
	logger         *slog.Logger
	configProvider ConfigProvider
	tracker        *Tracker
	store          StateStore
	shell          *shell.Runner
	compose        *compose.Adapter
	cluster        cluster.Source
	hosts          HostResolver
	daemon         DaemonChecker
	secrets        *SecretsWriter
	metrics        *Metrics
	settings       Settings
	environ        func() []string

	probeMu sync.Mutex
	probe   *ClusterStatus // protected by probeMu
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for persistence.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithTracker shares an existing tracker.
func WithTracker(t *Tracker) Option {
	return func(r *Runner) {
		r.tracker = t
	}
}

// WithShell sets the command runner.
func WithShell(s *shell.Runner) Option {
	return func(r *Runner) {
		r.shell = s
	}
}

// WithComposeAdapter sets the compose command normalizer.
func WithComposeAdapter(a *compose.Adapter) Option {
	return func(r *Runner) {
		r.compose = a
	}
}

// WithClusterSource sets where pod status comes from.
func WithClusterSource(src cluster.Source) Option {
	return func(r *Runner) {
		r.cluster = src
	}
}

// WithHostResolver sets the public IP resolver used for service links.
func WithHostResolver(h HostResolver) Option {
	return func(r *Runner) {
		r.hosts = h
	}
}

// WithDaemonChecker enables a container engine check before compose commands.
func WithDaemonChecker(d DaemonChecker) Option {
	return func(r *Runner) {
		r.daemon = d
	}
}

// WithSecretsWriter sets the secrets file writer.
func WithSecretsWriter(w *SecretsWriter) Option {
	return func(r *Runner) {
		r.secrets = w
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithSettings overrides timings and limits. Zero fields keep their defaults.
func WithSettings(s Settings) Option {
	return func(r *Runner) {
		r.settings = s.withDefaults()
	}
}

// WithEnviron sets the source of the ambient environment commands inherit.
func WithEnviron(fn func() []string) Option {
	return func(r *Runner) {
		r.environ = fn
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, provider ConfigProvider, opts ...Option) *Runner {
	r := &Runner{
		logger:         logger,
		configProvider: provider,
		settings:       DefaultSettings(),
		environ:        os.Environ,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.tracker == nil {
		r.tracker = NewTracker()
	}
	if r.store == nil {
		r.store = NewMemoryStore()
	}
	if r.shell == nil {
		r.shell = shell.New(shell.WithLogger(logger))
	}
	if r.compose == nil {
		r.compose = compose.NewAdapter(compose.WithLogger(logger))
	}
	if r.cluster == nil {
		r.cluster = cluster.NewCommandSource(r.shell, "", r.settings.StatusTimeout)
	}
	if r.hosts == nil {
		r.hosts = hostinfo.NewResolver(hostinfo.WithLogger(logger))
	}
	if r.secrets == nil {
		r.secrets = NewSecretsWriter(nil)
	}

	r.metrics.setDeployed(r.store.Load().Deployed)
	return r
}

// Status returns the current run status.
func (r *Runner) Status() RunStatus {
	return r.tracker.Snapshot()
}

// IsRunning returns true if an operation holds the run slot.
func (r *Runner) IsRunning() bool {
	return r.tracker.Snapshot().IsRunning
}

// Records returns a copy of the current or last operation's log.
func (r *Runner) Records() []Record {
	records, _ := r.tracker.Since(0)
	return records
}

// History returns the finished runs, most recent first.
func (r *Runner) History() []RunStatus {
	return r.tracker.History()
}

// Deployment returns the persisted deployment record.
func (r *Runner) Deployment() DeploymentRecord {
	return r.store.Load()
}

// activeDeployment resolves the deployment type selected by configuration.
func (r *Runner) activeDeployment() (*config.Deployment, bool) {
	cfg := r.configProvider.DeployConfig()
	if cfg == nil {
		return nil, false
	}
	return cfg.Active(r.configProvider.DeployType())
}

// session carries one operation's records to the tracker and to the
// caller's stream, in that order.
type session struct {
	r      *Runner
	out    Emitter
	runID  string
	logger *slog.Logger
	// detached is set once the caller's stream fails; the run continues.
	detached bool
	// state is the terminal state the session finished with.
	state RunState
}

func (r *Runner) newSession(runID string, op Operation, out Emitter) *session {
	r.metrics.runStarted()
	return &session{
		r:      r,
		out:    out,
		runID:  runID,
		logger: r.logger.With("run_id", runID, "operation", op),
	}
}

func (s *session) emit(rec Record) {
	s.r.tracker.Append(rec)
	s.r.metrics.recordAppended()
	if s.detached {
		return
	}
	if err := s.out.Emit(rec); err != nil {
		s.detached = true
		s.logger.Warn("client stream closed, continuing without it", "error", err)
	}
}

func (s *session) emitf(kind Kind, message string) {
	s.emit(NewRecord(kind, message))
}

func (s *session) emitOutput(lines []string) {
	for _, line := range lines {
		s.emit(NewRecord(KindOutput, line))
	}
}

func (s *session) heartbeat() {
	if s.detached {
		return
	}
	if err := s.out.Heartbeat(); err != nil {
		s.detached = true
		s.logger.Warn("client stream closed, continuing without it", "error", err)
	}
}

func (s *session) finish(state RunState) {
	s.state = state
	if err := s.r.tracker.Finish(state); err != nil {
		s.logger.Error("failed to finish run", "error", err)
		return
	}
	status := s.r.tracker.Snapshot()
	s.r.metrics.runFinished(status)
	s.logger.Info("run finished", "status", state, "duration", status.Duration(), "records", status.LogCount)
}
