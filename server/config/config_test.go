package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
listener:
  addr: ":9090"
deploy_config: /etc/golaunch/config.json
state_file: /var/lib/golaunch/state.json
timings:
  poll_interval: 2s
  monitor_timeout: 1m
cluster:
  source: kubernetes
probe:
  schedule: "*/5 * * * *"
logging:
  level: debug
  format: text
metrics:
  push_url: http://vm:8428
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listener.Addr)
	assert.Equal(t, "/etc/golaunch/config.json", cfg.DeployConfig)
	assert.Equal(t, "/var/lib/golaunch/state.json", cfg.StateFile)
	assert.Equal(t, 2*time.Second, cfg.Timings.PollInterval)
	assert.Equal(t, time.Minute, cfg.Timings.MonitorTimeout)
	assert.Equal(t, 10*time.Second, cfg.Timings.StatusTimeout)
	assert.Equal(t, ClusterSourceKubernetes, cfg.Cluster.Source)
	assert.Equal(t, "*/5 * * * *", cfg.Probe.Schedule)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://vm:8428", cfg.Metrics.PushURL)
	assert.False(t, cfg.TLSEnabled())
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSetDefaults(t *testing.T) {
	var cfg ServerConfig
	cfg.SetDefaults()

	assert.Equal(t, ":8080", cfg.Listener.Addr)
	assert.Equal(t, "./config.json", cfg.DeployConfig)
	assert.Equal(t, "./help-content.json", cfg.HelpContent)
	assert.Equal(t, "./data/deployment.state", cfg.StateFile)
	assert.Equal(t, 5*time.Second, cfg.Timings.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Timings.MonitorTimeout)
	assert.Equal(t, 10*time.Second, cfg.Timings.StatusTimeout)
	assert.Equal(t, time.Second, cfg.Timings.FollowInterval)
	assert.Equal(t, 10*time.Minute, cfg.Timings.CommandTimeout)
	assert.Equal(t, 5*time.Second, cfg.Timings.GracePeriod)
	assert.Equal(t, ClusterSourceCommand, cfg.Cluster.Source)
	assert.Equal(t, 15, cfg.Cluster.MaxPods)
	assert.Equal(t, 20, cfg.Cluster.TailLines)
	assert.Equal(t, "https://icanhazip.com", cfg.HostIP.Endpoint)
	assert.Equal(t, "golaunch", cfg.Metrics.Prefix)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DEPLOY_TYPE":       "helm",
		"STATE_FILE":        "/tmp/state",
		"CONFIG_FILE":       "/tmp/config.json",
		"HELP_CONTENT_FILE": "/tmp/help.json",
		"LAUNCHER_PATH":     "/launch",
		"PROJECT_NAME":      "Studio",
		"DEPLOY_HEADING":    "Go",
		"SHOW_DRY_RUN":      "yes",
		"DRY_RUN":           "true",
	}
	cfg := ServerConfig{DeployType: "compose", StateFile: "/var/state"}
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, "helm", cfg.DeployType)
	assert.Equal(t, "/tmp/state", cfg.StateFile)
	assert.Equal(t, "/tmp/config.json", cfg.DeployConfig)
	assert.Equal(t, "/tmp/help.json", cfg.HelpContent)
	assert.Equal(t, "/launch", cfg.LauncherPath)
	assert.Equal(t, "Studio", cfg.ProjectName)
	assert.Equal(t, "Go", cfg.Heading)
	assert.True(t, cfg.ShowDryRun)
	assert.True(t, cfg.DryRun)
}

func TestApplyEnv_NoOverrides(t *testing.T) {
	cfg := ServerConfig{DeployType: "compose", ShowDryRun: true}
	require.NoError(t, cfg.ApplyEnv(noEnv))
	assert.Equal(t, "compose", cfg.DeployType)
	assert.True(t, cfg.ShowDryRun)
}

func TestApplyEnv_InvalidBool(t *testing.T) {
	var cfg ServerConfig
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "DRY_RUN" {
			return "maybe", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*ServerConfig) {}},
		{name: "unknown cluster source", mutate: func(c *ServerConfig) { c.Cluster.Source = "ssh" }, wantErr: true},
		{name: "negative poll", mutate: func(c *ServerConfig) { c.Timings.PollInterval = -time.Second }, wantErr: true},
		{name: "ceiling below poll", mutate: func(c *ServerConfig) { c.Timings.MonitorTimeout = time.Second }, wantErr: true},
		{name: "tls cert without key", mutate: func(c *ServerConfig) { c.Listener.TLSCert = "cert.pem" }, wantErr: true},
		{name: "tls pair", mutate: func(c *ServerConfig) { c.Listener.TLSCert = "cert.pem"; c.Listener.TLSKey = "key.pem" }},
		{name: "negative max pods", mutate: func(c *ServerConfig) { c.Cluster.MaxPods = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg ServerConfig
			cfg.SetDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
