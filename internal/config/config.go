// Package config loads aa-monitor settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	FileName  = "aa-monitor"
	EnvPrefix = "AA"
)

type Config struct {
	API        APIConfig        `mapstructure:"api"`
	AutoAccept AutoAcceptConfig `mapstructure:"autoAccept"`
	PythonPath string           `mapstructure:"pythonPath"`
	APIKey     string           `mapstructure:"apiKey"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Project    ProjectConfig    `mapstructure:"project"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"baseURL"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AutoAcceptConfig.Enabled is pushed to the backend at startup when set;
// nil leaves the backend switch alone.
type AutoAcceptConfig struct {
	Enabled *bool `mapstructure:"enabled"`
}

// MonitoringConfig intervals are milliseconds.
type MonitoringConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RefreshInterval   int  `mapstructure:"refreshInterval"`
	DashboardInterval int  `mapstructure:"dashboardInterval"`
}

func (m MonitoringConfig) RefreshEvery() time.Duration {
	return time.Duration(m.RefreshInterval) * time.Millisecond
}

func (m MonitoringConfig) DashboardEvery() time.Duration {
	return time.Duration(m.DashboardInterval) * time.Millisecond
}

type BackendConfig struct {
	Spawn bool   `mapstructure:"spawn"`
	Dir   string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	File   string `mapstructure:"file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ProjectConfig struct {
	Path string `mapstructure:"path"`
	Name string `mapstructure:"name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.baseURL", "http://127.0.0.1:5555")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("pythonPath", "python")
	v.SetDefault("apiKey", "")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.refreshInterval", 10000)
	v.SetDefault("monitoring.dashboardInterval", 5000)
	v.SetDefault("backend.spawn", false)
	v.SetDefault("backend.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "aa-monitor.log")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("project.path", "./workspace")
	v.SetDefault("project.name", "MyProject")
}

// Loader owns one viper instance. Flags bound with BindFlags take
// precedence over env, which takes precedence over the file.
type Loader struct {
	v *viper.Viper

	mu      sync.Mutex
	current *Config
}

// NewLoader searches for aa-monitor.{yaml,json,toml} in the working directory
// and $HOME/.config/aa-monitor, unless file names an explicit path.
func NewLoader(file string) *Loader {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/aa-monitor")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("autoAccept.enabled")
	setDefaults(v)
	return &Loader{v: v}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"base-url":    "api.baseURL",
	"timeout":     "api.timeout",
	"python":      "pythonPath",
	"spawn":       "backend.spawn",
	"backend-dir": "backend.dir",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"log-file":    "log.file",
	"metrics":     "metrics.addr",
}

// BindFlags binds every known flag present in fs.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// ConfigFile is the file in use, empty when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the file on change and calls fn with the new config.
// Invalid edits are reported through onError and leave the previous config
// in place.
func (l *Loader) Watch(fn func(*Config), onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		fn(cfg)
	})
	l.v.WatchConfig()
}

// Current returns the last successfully loaded config.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.baseURL must not be empty"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if c.Monitoring.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitoring.refreshInterval must be positive, got %d", c.Monitoring.RefreshInterval))
	}
	if c.Monitoring.DashboardInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitoring.dashboardInterval must be positive, got %d", c.Monitoring.DashboardInterval))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
