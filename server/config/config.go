package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nomis52/golaunch/logging"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr    = ":8080"
	defaultDeployConfig  = "./config.json"
	defaultHelpContent   = "./help-content.json"
	defaultStateFile     = "./data/deployment.state"
	defaultIPEndpoint    = "https://icanhazip.com"
	defaultIPTimeout     = 5 * time.Second
	defaultMetricsPrefix = "golaunch"
	defaultMetricsJob    = "golaunch"

	defaultPollInterval   = 5 * time.Second
	defaultMonitorTimeout = 15 * time.Minute
	defaultStatusTimeout  = 10 * time.Second
	defaultFollowInterval = time.Second
	defaultCommandTimeout = 10 * time.Minute
	defaultGracePeriod    = 5 * time.Second

	defaultMaxPods   = 15
	defaultTailLines = 20

	// ClusterSourceCommand queries pod status with a shell command.
	ClusterSourceCommand = "command"
	// ClusterSourceKubernetes queries pod status through the Kubernetes API.
	ClusterSourceKubernetes = "kubernetes"
)

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	// The path to the deployment types file
	DeployConfig string `yaml:"deploy_config"`
	// The path to the help content shown by the UI
	HelpContent string `yaml:"help_content"`
	// The path to the file recording the last successful deployment
	StateFile string `yaml:"state_file"`
	// Optional directory of UI assets served at /
	StaticDir string `yaml:"static_dir"`

	// DeployType selects the active deployment type. Empty means the first one.
	DeployType   string `yaml:"deploy_type"`
	Heading      string `yaml:"heading"`
	ProjectName  string `yaml:"project_name"`
	LauncherPath string `yaml:"launcher_path"`
	// ShowDryRun exposes the dry run option in the UI.
	ShowDryRun bool `yaml:"show_dry_run"`
	// DryRun forces every POST /deploy to be a dry run.
	DryRun bool `yaml:"dry_run"`

	Timings TimingsConfig  `yaml:"timings"`
	Cluster ClusterConfig  `yaml:"cluster"`
	Probe   ProbeConfig    `yaml:"probe"`
	Docker  DockerConfig   `yaml:"docker"`
	HostIP  HostIPConfig   `yaml:"host_ip"`
	Logging logging.Config `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// TLS is enabled when both are set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// TimingsConfig controls how deployments are run and observed.
type TimingsConfig struct {
	// How often the cluster is polled while the main command runs
	PollInterval time.Duration `yaml:"poll_interval"`
	// How long the main command is observed before reporting a timeout
	MonitorTimeout time.Duration `yaml:"monitor_timeout"`
	// Bound on a single cluster status query
	StatusTimeout time.Duration `yaml:"status_timeout"`
	// How often followers check for new records
	FollowInterval time.Duration `yaml:"follow_interval"`
	// Bound on each pre, post and uninstall command
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// How long to wait for an exit status once the monitor timeout passes
	GracePeriod time.Duration `yaml:"grace_period"`
}

// ClusterConfig selects how pod status is obtained.
type ClusterConfig struct {
	// Source is "command" (default) or "kubernetes".
	Source string `yaml:"source"`
	// Command template for the command source; {namespace} is substituted.
	Command string `yaml:"command"`
	// Maximum pod rows reported per poll
	MaxPods int `yaml:"max_pods"`
	// Output lines reported when the main command fails
	TailLines int `yaml:"tail_lines"`
}

// ProbeConfig schedules periodic cluster status checks while idle.
type ProbeConfig struct {
	// Cron spec (5 fields). Empty disables the probe.
	Schedule string `yaml:"schedule"`
}

// DockerConfig controls the daemon check before compose commands.
type DockerConfig struct {
	CheckDaemon bool `yaml:"check_daemon"`
	// Host overrides DOCKER_HOST.
	Host string `yaml:"host"`
}

// HostIPConfig controls public IP resolution for service links.
type HostIPConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Remote write URL. Empty disables pushing.
	PushURL  string `yaml:"push_url"`
	Prefix   string `yaml:"prefix"`
	Job      string `yaml:"job"`
	Instance string `yaml:"instance"`
}

// LoadConfig reads the YAML config file at the given path and returns a ServerConfig struct.
// Environment overrides are applied after decoding.
func LoadConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration built only from defaults and the
// environment, for running without a config file.
func Default() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *ServerConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DEPLOY_TYPE":       &c.DeployType,
		"STATE_FILE":        &c.StateFile,
		"CONFIG_FILE":       &c.DeployConfig,
		"HELP_CONTENT_FILE": &c.HelpContent,
		"LAUNCHER_PATH":     &c.LauncherPath,
		"PROJECT_NAME":      &c.ProjectName,
		"DEPLOY_HEADING":    &c.Heading,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"SHOW_DRY_RUN": &c.ShowDryRun,
		"DRY_RUN":      &c.DryRun,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("environment variable %s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.DeployConfig == "" {
		c.DeployConfig = defaultDeployConfig
	}
	if c.HelpContent == "" {
		c.HelpContent = defaultHelpContent
	}
	if c.StateFile == "" {
		c.StateFile = defaultStateFile
	}

	t := &c.Timings
	if t.PollInterval == 0 {
		t.PollInterval = defaultPollInterval
	}
	if t.MonitorTimeout == 0 {
		t.MonitorTimeout = defaultMonitorTimeout
	}
	if t.StatusTimeout == 0 {
		t.StatusTimeout = defaultStatusTimeout
	}
	if t.FollowInterval == 0 {
		t.FollowInterval = defaultFollowInterval
	}
	if t.CommandTimeout == 0 {
		t.CommandTimeout = defaultCommandTimeout
	}
	if t.GracePeriod == 0 {
		t.GracePeriod = defaultGracePeriod
	}

	if c.Cluster.Source == "" {
		c.Cluster.Source = ClusterSourceCommand
	}
	if c.Cluster.MaxPods == 0 {
		c.Cluster.MaxPods = defaultMaxPods
	}
	if c.Cluster.TailLines == 0 {
		c.Cluster.TailLines = defaultTailLines
	}

	if c.HostIP.Endpoint == "" {
		c.HostIP.Endpoint = defaultIPEndpoint
	}
	if c.HostIP.Timeout == 0 {
		c.HostIP.Timeout = defaultIPTimeout
	}

	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = defaultMetricsPrefix
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = defaultMetricsJob
	}
	if c.Metrics.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			c.Metrics.Instance = host
		}
	}
}

// Validate checks values that defaults cannot repair.
func (c *ServerConfig) Validate() error {
	t := c.Timings
	durations := map[string]time.Duration{
		"timings.poll_interval":   t.PollInterval,
		"timings.monitor_timeout": t.MonitorTimeout,
		"timings.status_timeout":  t.StatusTimeout,
		"timings.follow_interval": t.FollowInterval,
		"timings.command_timeout": t.CommandTimeout,
		"timings.grace_period":    t.GracePeriod,
		"host_ip.timeout":         c.HostIP.Timeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if t.MonitorTimeout < t.PollInterval {
		return fmt.Errorf("timings.monitor_timeout (%s) must be at least timings.poll_interval (%s)", t.MonitorTimeout, t.PollInterval)
	}

	switch c.Cluster.Source {
	case ClusterSourceCommand, ClusterSourceKubernetes:
	default:
		return fmt.Errorf("cluster.source must be %q or %q, got %q", ClusterSourceCommand, ClusterSourceKubernetes, c.Cluster.Source)
	}
	if c.Cluster.MaxPods < 0 || c.Cluster.TailLines < 0 {
		return fmt.Errorf("cluster.max_pods and cluster.tail_lines must not be negative")
	}

	if (c.Listener.TLSCert == "") != (c.Listener.TLSKey == "") {
		return fmt.Errorf("listener.tls_cert and listener.tls_key must be set together")
	}
	return nil
}

// TLSEnabled reports whether the listener should serve HTTPS.
func (c *ServerConfig) TLSEnabled() bool {
	return c.Listener.TLSCert != "" && c.Listener.TLSKey != ""
}
