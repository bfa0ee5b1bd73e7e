// Package server provides the HTTP server for the deployment launcher.
//
// The server runs one deployment at a time and streams its progress to any
// number of observers over server-sent events or WebSocket.
//
// # Endpoints
//
//   - GET / - Static UI assets, when a static directory is configured
//   - GET /health - Simple health check, returns "ok"
//   - GET /config - Metadata for the active deployment type
//   - GET /state - Persisted record, run status, cluster probe and server properties
//   - GET /help - Help content for the UI
//   - GET /deploy/status - Current run status
//   - GET /deploy/history - Finished runs, most recent first
//   - GET /deploy/logs - Replay and follow the current run as server-sent events
//   - GET /deploy/logs/ws - The same stream over a WebSocket
//   - POST /deploy/stream - Start or join a deployment, streamed as server-sent events
//   - POST /deploy - Dry run, or a deployment with a single JSON response
//   - POST /uninstall - Uninstall the recorded deployment, streamed as server-sent events
//   - POST /reload - Reload deployment types and help content from disk
//   - GET /metrics - Prometheus metrics
//
// # Architecture
//
// Deployment types and help content are swapped atomically on reload. The
// runner reads the current types when an operation starts, so a reload never
// affects an operation in progress.
//
// # Example
//
//	cfg, err := config.LoadConfig("/etc/golaunch/server.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/golaunch/buildinfo"
	"github.com/nomis52/golaunch/clients/cluster"
	"github.com/nomis52/golaunch/clients/compose"
	"github.com/nomis52/golaunch/clients/hostinfo"
	"github.com/nomis52/golaunch/clients/shell"
	"github.com/nomis52/golaunch/config"
	"github.com/nomis52/golaunch/metrics"
	srvconfig "github.com/nomis52/golaunch/server/config"
	"github.com/nomis52/golaunch/server/cron"
	"github.com/nomis52/golaunch/server/handlers"
	"github.com/nomis52/golaunch/server/runner"
	"github.com/nomis52/golaunch/server/types"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds file-derived state that is swapped atomically on reload.
type serverDeps struct {
	deployConfig *config.Config
	help         config.HelpContent
	loadedAt     time.Time
}

// Server is the HTTP server for the launcher.
type Server struct {
	cfg        *srvconfig.ServerConfig
	logger     *slog.Logger
	deps       atomic.Pointer[serverDeps]
	httpServer *http.Server
	runner     *runner.Runner
	probe      *cron.CronTrigger
	scrape     *metrics.ScrapeRegistry
	push       *metrics.PushRegistry
	daemon     *compose.DaemonChecker
	startedAt  time.Time
	hostname   string

	// set by options, consumed by New
	clusterSource cluster.Source
	runnerOpts    []runner.Option
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides the configured listen address.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.cfg.Listener.Addr = addr
		return nil
	}
}

// WithClusterSource replaces the pod status source selected by the config.
func WithClusterSource(src cluster.Source) Option {
	return func(s *Server) error {
		s.clusterSource = src
		return nil
	}
}

// WithRunnerOptions passes extra options to the runner. They are applied
// after the options derived from the config.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *Server) error {
		s.runnerOpts = append(s.runnerOpts, opts...)
		return nil
	}
}

// New creates a Server from cfg. A missing or invalid deployment config is
// logged rather than returned so the server can start and report it.
func New(cfg *srvconfig.ServerConfig, logger *slog.Logger, opts ...Option) (*Server, error) {
	hostname, _ := os.Hostname()
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		hostname:  hostname,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.Reload(); err != nil {
		logger.Warn("deployment config not loaded", "path", cfg.DeployConfig, "error", err)
	}

	reg, err := s.newMetricsRegistry()
	if err != nil {
		return nil, err
	}
	runnerMetrics, err := runner.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("creating runner metrics: %w", err)
	}

	runnerOpts, err := s.runnerOptions(runnerMetrics)
	if err != nil {
		return nil, err
	}
	s.runner = runner.New(logger, s, append(runnerOpts, s.runnerOpts...)...)

	if cfg.Probe.Schedule != "" {
		trigger, err := cron.NewCronTrigger(cfg.Probe.Schedule, "cluster probe", s.runner.ProbeCluster, logger)
		if err != nil {
			return nil, fmt.Errorf("creating cluster probe: %w", err)
		}
		s.probe = trigger
	}

	return s, nil
}

func (s *Server) newMetricsRegistry() (metrics.Registry, error) {
	scrape, err := metrics.NewScrapeRegistry()
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	s.scrape = scrape

	mc := s.cfg.Metrics
	if mc.PushURL == "" {
		return scrape, nil
	}
	s.push = metrics.NewPushRegistry(metrics.PushConfig{
		URL:      mc.PushURL,
		Prefix:   mc.Prefix,
		Job:      mc.Job,
		Instance: mc.Instance,
		Logger:   s.logger,
	})
	return metrics.Tee{scrape, s.push}, nil
}

func (s *Server) runnerOptions(m *runner.Metrics) ([]runner.Option, error) {
	cfg := s.cfg
	sh := shell.New(shell.WithLogger(s.logger))

	src := s.clusterSource
	if src == nil {
		switch cfg.Cluster.Source {
		case srvconfig.ClusterSourceKubernetes:
			kube, err := cluster.NewKubeSourceFromEnv()
			if err != nil {
				return nil, fmt.Errorf("creating kubernetes cluster source: %w", err)
			}
			src = kube
		default:
			src = cluster.NewCommandSource(sh, cfg.Cluster.Command, cfg.Timings.StatusTimeout)
		}
	}

	opts := []runner.Option{
		runner.WithStateStore(runner.NewDiskStore(cfg.StateFile, s.logger)),
		runner.WithShell(sh),
		runner.WithComposeAdapter(compose.NewAdapter(compose.WithLogger(s.logger))),
		runner.WithClusterSource(src),
		runner.WithHostResolver(hostinfo.NewResolver(
			hostinfo.WithEndpoint(cfg.HostIP.Endpoint),
			hostinfo.WithTimeout(cfg.HostIP.Timeout),
			hostinfo.WithLogger(s.logger),
		)),
		runner.WithMetrics(m),
		runner.WithSettings(runner.Settings{
			PollInterval:   cfg.Timings.PollInterval,
			MonitorTimeout: cfg.Timings.MonitorTimeout,
			StatusTimeout:  cfg.Timings.StatusTimeout,
			FollowInterval: cfg.Timings.FollowInterval,
			CommandTimeout: cfg.Timings.CommandTimeout,
			GracePeriod:    cfg.Timings.GracePeriod,
			MaxPods:        cfg.Cluster.MaxPods,
			TailLines:      cfg.Cluster.TailLines,
		}),
	}

	if cfg.Docker.CheckDaemon {
		daemon, err := compose.NewDaemonChecker(cfg.Docker.Host)
		if err != nil {
			return nil, fmt.Errorf("creating docker daemon checker: %w", err)
		}
		s.daemon = daemon
		opts = append(opts, runner.WithDaemonChecker(daemon))
	}
	return opts, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Runner returns the deployment runner.
func (s *Server) Runner() *runner.Runner {
	return s.runner
}

// Reload reads the deployment types and help content from disk. The help
// content falls back to the built-in default; the deployment types are only
// replaced when the new file is valid.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.cfg.DeployConfig)
	if err != nil {
		return err
	}

	help, err := config.LoadHelpContent(s.cfg.HelpContent)
	if err != nil {
		s.logger.Debug("using default help content", "error", err)
		help = config.DefaultHelpContent()
	}

	s.deps.Store(&serverDeps{
		deployConfig: cfg,
		help:         help,
		loadedAt:     time.Now(),
	})

	s.logger.Info("configuration loaded",
		"config_path", s.cfg.DeployConfig,
		"deployment_types", cfg.Names(),
	)
	return nil
}

// DeployConfig returns the current deployment types, or nil if none loaded.
func (s *Server) DeployConfig() *config.Config {
	if deps := s.deps.Load(); deps != nil {
		return deps.deployConfig
	}
	return nil
}

// DeployType returns the configured deployment type override.
func (s *Server) DeployType() string {
	return s.cfg.DeployType
}

// HelpContent returns the current help document.
func (s *Server) HelpContent() config.HelpContent {
	if deps := s.deps.Load(); deps != nil {
		return deps.help
	}
	return config.DefaultHelpContent()
}

// UIOptions returns the server-level UI overrides.
func (s *Server) UIOptions() handlers.UIOptions {
	return handlers.UIOptions{
		Heading:      s.cfg.Heading,
		ProjectName:  s.cfg.ProjectName,
		LauncherPath: s.cfg.LauncherPath,
		ShowDryRun:   s.cfg.ShowDryRun,
	}
}

// Properties describes the running server.
func (s *Server) Properties() types.ServerProperties {
	props := types.ServerProperties{
		Build:        buildinfo.Get(),
		StartedAt:    s.startedAt,
		Hostname:     s.hostname,
		DeployConfig: s.cfg.DeployConfig,
	}
	if deps := s.deps.Load(); deps != nil {
		props.ConfigLoadedAt = deps.loadedAt
	}
	if s.probe != nil {
		next := s.probe.NextRun()
		props.NextProbe = &next
	}
	return props
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// History returns finished runs by delegating to the runner.
func (s *Server) History() []runner.RunStatus {
	return s.runner.History()
}

// Deployment returns the persisted deployment record.
func (s *Server) Deployment() runner.DeploymentRecord {
	return s.runner.Deployment()
}

// ClusterStatus returns the last cluster probe result.
func (s *Server) ClusterStatus() *runner.ClusterStatus {
	return s.runner.ClusterStatus()
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// The cluster probe and metrics pusher, if configured, run alongside it.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Listener.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	if s.cfg.TLSEnabled() {
		loader, err := NewCertLoader(s.cfg.Listener.TLSCert, s.cfg.Listener.TLSKey, s.logger)
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = &tls.Config{
			GetCertificate: loader.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}
	}

	if s.probe != nil {
		s.logger.Info("starting cluster probe", "schedule", s.probe.Spec(), "next_run", s.probe.NextRun())
		s.probe.Start(ctx)
	}

	pushDone := make(chan struct{})
	if s.push != nil {
		go func() {
			defer close(pushDone)
			s.push.Run(ctx)
		}()
	} else {
		close(pushDone)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.cfg.Listener.Addr,
			"tls", s.cfg.TLSEnabled(),
			"deploy_config", s.cfg.DeployConfig,
		)
		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	defer s.daemon.Close()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		<-pushDone
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	deployHandler := handlers.NewDeployHandler(s.logger, s.runner, s.cfg.DryRun)

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("GET /state", handlers.NewStateHandler(s))
	mux.Handle("GET /help", handlers.NewHelpHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))
	mux.Handle("GET /metrics", s.scrape.Handler())

	mux.Handle("GET /deploy/status", handlers.NewRunStatusHandler(s))
	mux.Handle("GET /deploy/history", handlers.NewHistoryHandler(s))
	mux.Handle("GET /deploy/logs", handlers.NewLogsHandler(s.logger, s.runner))
	mux.Handle("GET /deploy/logs/ws", handlers.NewLogsWebSocketHandler(s.logger, s.runner))
	mux.Handle("POST /deploy/stream", handlers.NewDeployStreamHandler(s.logger, s.runner))
	mux.Handle("POST /deploy", deployHandler)
	mux.Handle("POST /uninstall", handlers.NewUninstallHandler(s.logger, s.runner))

	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}
