package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aa-monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5555", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Monitoring.RefreshEvery())
	assert.Equal(t, 5*time.Second, cfg.Monitoring.DashboardEvery())
	assert.Equal(t, "python", cfg.PythonPath)
	assert.Nil(t, cfg.AutoAccept.Enabled, "unset switch leaves the backend alone")
	assert.Equal(t, "aa-monitor.log", cfg.Log.File)
	assert.Equal(t, "MyProject", cfg.Project.Name)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
api:
  baseURL: http://127.0.0.1:7000
  timeout: 3s
autoAccept:
  enabled: true
pythonPath: /usr/bin/python3
monitoring:
  refreshInterval: 15000
log:
  level: debug
`)
	t.Setenv("AA_MONITORING_DASHBOARDINTERVAL", "2500")
	t.Setenv("AA_API_BASEURL", "http://10.0.0.2:5555")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "info", "")
	fs.Bool("spawn", false, "")
	require.NoError(t, fs.Parse([]string{"--log-level=warn"}))

	loader := NewLoader(path)
	require.NoError(t, loader.BindFlags(fs))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, path, loader.ConfigFile())
	assert.Equal(t, "http://10.0.0.2:5555", cfg.API.BaseURL, "env beats file")
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	require.NotNil(t, cfg.AutoAccept.Enabled)
	assert.True(t, *cfg.AutoAccept.Enabled)
	assert.Equal(t, "/usr/bin/python3", cfg.PythonPath)
	assert.Equal(t, 15*time.Second, cfg.Monitoring.RefreshEvery())
	assert.Equal(t, 2500*time.Millisecond, cfg.Monitoring.DashboardEvery())
	assert.Equal(t, "warn", cfg.Log.Level, "flag beats file")
	assert.False(t, cfg.Backend.Spawn, "unset flag keeps the default")
	assert.Same(t, cfg, loader.Current())
}

func TestAutoAcceptFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AA_AUTOACCEPT_ENABLED", "false")
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.AutoAccept.Enabled)
	assert.False(t, *cfg.AutoAccept.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
monitoring:
  refreshInterval: 0
log:
  format: xml
`)
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "monitoring.refreshInterval")
	assert.ErrorContains(t, err, "log.format")
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "api: [unclosed")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestWatchReappliesMonitoring(t *testing.T) {
	path := writeConfig(t, "monitoring:\n  refreshInterval: 10000\n")
	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	var latest atomic.Int64
	loader.Watch(func(cfg *Config) {
		latest.Store(int64(cfg.Monitoring.RefreshInterval))
	}, nil)

	require.NoError(t, os.WriteFile(path, []byte("monitoring:\n  refreshInterval: 20000\n"), 0o644))
	require.Eventually(t, func() bool { return latest.Load() == 20000 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 20000, loader.Current().Monitoring.RefreshInterval)
}
