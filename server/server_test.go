package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srvconfig "github.com/nomis52/golaunch/server/config"
	"github.com/nomis52/golaunch/server/runner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticCluster struct{}

func (staticCluster) Status(ctx context.Context, namespace string, env []string) (string, error) {
	return "web-0   1/1   Running   0   5s", nil
}

const deployTypes = `
_meta:
  project_name: Lab
local:
  command: "echo deploying; echo done"
  working_dir: %s
  namespace: lab
  pre_commands: ["echo preparing"]
  uninstall_commands: ["echo removing"]
  services:
    - name: UI
      url: http://localhost:3000
`

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	cfgPath string
	workDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	workDir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeDeployTypes(t, cfgPath, strings.Replace(deployTypes, "%s", workDir, 1))

	cfg := &srvconfig.ServerConfig{
		DeployConfig: cfgPath,
		HelpContent:  filepath.Join(dir, "missing-help.json"),
		StateFile:    filepath.Join(dir, "state", "deployment.state"),
		Timings: srvconfig.TimingsConfig{
			PollInterval:   10 * time.Millisecond,
			MonitorTimeout: 10 * time.Second,
			FollowInterval: 10 * time.Millisecond,
			GracePeriod:    100 * time.Millisecond,
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	srv, err := New(cfg, testLogger(), WithClusterSource(staticCluster{}))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, http: ts, cfgPath: cfgPath, workDir: workDir}
}

func writeDeployTypes(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func readEvents(t *testing.T, resp *http.Response) []runner.Record {
	t.Helper()
	var records []runner.Record
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var rec runner.Record
		require.NoError(t, json.Unmarshal([]byte(payload), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestServer_ConfigAndHelp(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/config")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta map[string]any
	decode(t, resp, &meta)
	assert.Equal(t, "local", meta["active_deployment"])
	assert.Equal(t, "Lab", meta["project_name"])
	assert.Equal(t, true, meta["has_uninstall"])
	assert.Equal(t, false, meta["deployed"])

	resp = env.get(t, "/help")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var help map[string]any
	decode(t, resp, &help)
	assert.Equal(t, "Deployment Guide", help["title"])
}

func TestServer_MissingDeployConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &srvconfig.ServerConfig{
		DeployConfig: filepath.Join(dir, "missing.yaml"),
		StateFile:    filepath.Join(dir, "deployment.state"),
	}
	cfg.SetDefaults()

	srv, err := New(cfg, testLogger(), WithClusterSource(staticCluster{}))
	require.NoError(t, err)
	assert.Nil(t, srv.DeployConfig())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_DeployFollowUninstall(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/deploy/stream", `{"apiKey":"secret-key","version":"2.0"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	records := readEvents(t, resp)
	require.NotEmpty(t, records)
	assert.Equal(t, runner.KindStart, records[0].Type)
	assert.Equal(t, runner.KindComplete, records[len(records)-1].Type)

	var services []runner.Record
	for _, rec := range records {
		assert.NotContains(t, rec.Message, "secret-key")
		if rec.Type == runner.KindService {
			services = append(services, rec)
		}
	}
	require.Len(t, services, 1)
	assert.Equal(t, "http://localhost:3000", services[0].URL)

	var state struct {
		Persistent runner.DeploymentRecord `json:"persistent"`
		Runtime    map[string]any          `json:"runtime"`
	}
	decode(t, env.get(t, "/state"), &state)
	assert.True(t, state.Persistent.Deployed)
	assert.Equal(t, "local", state.Persistent.DeployType)
	assert.Equal(t, "2.0", state.Persistent.Version)
	assert.Equal(t, "success", state.Runtime["status"])

	// A late observer gets the full log followed by the final state.
	replay := readEvents(t, env.get(t, "/deploy/logs"))
	require.Len(t, replay, len(records)+1)
	assert.Equal(t, records, replay[:len(records)])
	assert.Equal(t, runner.StreamEndRecord(runner.RunStateSuccess), replay[len(records)])

	metricsBody, err := io.ReadAll(env.get(t, "/metrics").Body)
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), `runs_total{operation="deploy",status="success"} 1`)

	uninstall := readEvents(t, env.post(t, "/uninstall", ""))
	require.NotEmpty(t, uninstall)
	last := uninstall[len(uninstall)-1]
	assert.Equal(t, runner.KindComplete, last.Type)
	require.NotNil(t, last.Success)
	assert.True(t, *last.Success)

	decode(t, env.get(t, "/state"), &state)
	assert.False(t, state.Persistent.Deployed)
}

func TestServer_DeployJSON(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/deploy", `{"apiKey":"secret-key","dryRun":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dry runner.DryRunResult
	decode(t, resp, &dry)
	assert.True(t, dry.DryRun)
	assert.Equal(t, "local", dry.WouldExecute.DeploymentType)
	assert.Equal(t, "echo deploying; echo done", dry.WouldExecute.MainCommand)
	assert.Equal(t, "***", dry.WouldExecute.Environment["NGC_API_KEY"])

	resp = env.post(t, "/deploy", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.post(t, "/deploy", `{"apiKey":"secret-key"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result runner.SyncResult
	decode(t, resp, &result)
	assert.Equal(t, "success", result.State)
	assert.Contains(t, result.Output, "deploying")
}

func TestServer_Reload(t *testing.T) {
	env := newTestEnv(t)

	writeDeployTypes(t, env.cfgPath, `
helm:
  command: echo helm
`)
	resp := env.post(t, "/reload", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var meta map[string]any
	decode(t, env.get(t, "/config"), &meta)
	assert.Equal(t, "helm", meta["active_deployment"])

	// An invalid file leaves the previous types in place.
	writeDeployTypes(t, env.cfgPath, `helm: {}`)
	resp = env.post(t, "/reload", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, []string{"helm"}, env.srv.DeployConfig().Names())
}

func TestServer_StaticDir(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>launcher</h1>"), 0o644))

	dir := t.TempDir()
	cfg := &srvconfig.ServerConfig{
		DeployConfig: filepath.Join(dir, "missing.yaml"),
		StateFile:    filepath.Join(dir, "deployment.state"),
		StaticDir:    static,
	}
	cfg.SetDefaults()
	srv, err := New(cfg, testLogger(), WithClusterSource(staticCluster{}))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "launcher")
}

func TestServer_ProbeSchedule(t *testing.T) {
	dir := t.TempDir()
	cfg := &srvconfig.ServerConfig{
		DeployConfig: filepath.Join(dir, "missing.yaml"),
		StateFile:    filepath.Join(dir, "deployment.state"),
		Probe:        srvconfig.ProbeConfig{Schedule: "*/5 * * * *"},
	}
	cfg.SetDefaults()

	srv, err := New(cfg, testLogger(), WithClusterSource(staticCluster{}))
	require.NoError(t, err)
	props := srv.Properties()
	require.NotNil(t, props.NextProbe)
	assert.True(t, props.NextProbe.After(time.Now()))

	cfg.Probe.Schedule = "every five minutes"
	_, err = New(cfg, testLogger(), WithClusterSource(staticCluster{}))
	assert.Error(t, err)
}
