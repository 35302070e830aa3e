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
	path := filepath.Join(t.TempDir(), "agentwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Monitor.SampleInterval)
	assert.Equal(t, 1000, cfg.Monitor.LogCapacity)
	assert.Equal(t, 100, cfg.Monitor.LogTailLines)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.ChangeDebounce)

	assert.Equal(t, 10*time.Second, cfg.Tests.CallTimeout)
	assert.Equal(t, 5*time.Second, cfg.Tests.ProbeTimeout)
	assert.Equal(t, 10, cfg.Tests.LatencyIterations)
	assert.Equal(t, 100*time.Millisecond, cfg.Tests.LatencyPacing)
	assert.Equal(t, 5, cfg.Tests.LoadWorkers)
	assert.Equal(t, 4, cfg.Tests.LoadCallsPerWorker)
	assert.Equal(t, 500*time.Millisecond, cfg.Tests.FaultPacing)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "agentwatch:changes", cfg.Events.Channel)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NotNil(t, cfg.Notify.Retry)
	assert.True(t, cfg.Notify.Retry.Enable)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
monitor:
  sample_interval: 2s
tests:
  call_timeout: 3s
  latency_iterations: 5
agents:
  - id: r1
    name: researcher
    framework: crewai
    pid: 4242
    endpoint: ws://127.0.0.1:9000/agent
log_sources:
  - path: /var/log/researcher.log
    label: researcher
notify:
  enabled: true
  webhook:
    enabled: true
    url: https://hooks.example.com/agentwatch
    secret: s3cret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Monitor.SampleInterval)
	assert.Equal(t, 3*time.Second, cfg.Tests.CallTimeout)
	assert.Equal(t, 5, cfg.Tests.LatencyIterations)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, int32(4242), cfg.Agents[0].PID)
	assert.Equal(t, "ws://127.0.0.1:9000/agent", cfg.Agents[0].Endpoint)
	require.Len(t, cfg.LogSources, 1)
	assert.Equal(t, "researcher", cfg.LogSources[0].Label)
	assert.Equal(t, "s3cret", cfg.Notify.Webhook.Secret)
	assert.Equal(t, 10*time.Second, cfg.Notify.Webhook.Timeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("AGENTWATCH_SERVER_ADDRESS", ":9999")
	t.Setenv("AGENTWATCH_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, "server:\n  address: \":8081\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "agent without name", body: "agents:\n  - id: x\n"},
		{name: "bad endpoint", body: "agents:\n  - name: x\n    endpoint: nope\n"},
		{name: "source without path", body: "log_sources:\n  - label: x\n"},
		{name: "bad server mode", body: "server:\n  mode: turbo\n"},
		{name: "events without address", body: "events:\n  enabled: true\n"},
		{name: "webhook without url", body: "notify:\n  enabled: true\n  webhook:\n    enabled: true\n"},
		{name: "bad log level", body: "log:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validateConfig(cfg))
}
