// Package app wires the components into one context object built at startup
// and closed at shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"aamonitor/internal/api"
	"aamonitor/internal/backend"
	"aamonitor/internal/config"
	"aamonitor/internal/dashboard"
	"aamonitor/internal/refresh"
	"aamonitor/internal/tree"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Client    *api.Client
	Tracker   *dashboard.TaskTracker
	Collector *dashboard.Collector
	Latest    *dashboard.Latest

	Agents    *tree.AgentsProvider
	Cache     *tree.CacheProvider
	Actions   *tree.ActionsProvider
	Refresher *refresh.Refresher

	Backend *backend.Process

	mu      sync.Mutex
	metrics *http.Server
	closed  bool
}

// Options overrides pieces of the wiring, mainly for tests.
type Options struct {
	HTTPClient *http.Client
}

func New(cfg *config.Config, logger *zap.Logger, opts Options) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := api.New(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
		Metrics:    api.NewMetrics(reg),
	})
	tracker := dashboard.NewTaskTracker(0)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Client:    client,
		Tracker:   tracker,
		Collector: dashboard.NewCollector(client, tracker, logger),
		Latest:    &dashboard.Latest{},
		Agents:    tree.NewAgentsProvider(client, logger),
		Cache:     tree.NewCacheProvider(client, logger),
		Actions:   tree.NewActionsProvider(client, logger),
		Backend: backend.New(backend.Options{
			PythonPath: cfg.PythonPath,
			APIKey:     cfg.APIKey,
			Dirs:       backend.CandidateDirs(cfg.Backend.Dir),
			Logger:     logger,
		}),
	}
	a.Refresher = refresh.NewRefresher(client, logger, a.Agents, a.Cache, a.Actions)
	return a
}

// Start spawns the backend when configured and serves metrics when an
// address is set. A missing backend is not an error: the monitor runs
// disconnected.
func (a *App) Start(ctx context.Context) error {
	if a.Config.Backend.Spawn {
		if err := a.Backend.Start(ctx); err != nil && !errors.Is(err, backend.ErrNotFound) {
			return fmt.Errorf("start backend: %w", err)
		}
	}
	if want := a.Config.AutoAccept.Enabled; want != nil {
		a.syncAutoAccept(ctx, *want)
	}
	if a.Config.Metrics.Addr != "" {
		if err := a.serveMetrics(a.Config.Metrics.Addr); err != nil {
			return err
		}
	}
	return nil
}

// syncAutoAccept sets the backend switch to want when it differs. An
// unreachable backend is logged and skipped.
func (a *App) syncAutoAccept(ctx context.Context, want bool) {
	logger := a.Logger.Named("app")
	status, err := a.Client.AutoAccept(ctx)
	if err != nil {
		logger.Warn("auto-accept sync skipped", zap.Error(err))
		return
	}
	if status.Enabled == want {
		return
	}
	if _, err := a.Client.SetAutoAccept(ctx, want); err != nil {
		logger.Warn("auto-accept sync failed", zap.Error(err))
		return
	}
	logger.Info("auto-accept set from config", zap.Bool("enabled", want))
}

// Close stops the metrics server and the backend. It is safe to call twice.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	srv := a.metrics
	a.mu.Unlock()

	var errs []error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := a.Backend.Stop(); err != nil && !errors.Is(err, backend.ErrNotRunning) {
		errs = append(errs, err)
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}

// ApplyConfig re-applies the settings that can change while running.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Config = cfg
}

// Monitoring returns the current monitoring settings.
func (a *App) Monitoring() config.MonitoringConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Config.Monitoring
}

// Loop builds the headless scheduler over this app's components.
func (a *App) Loop(onUpdate func(dashboard.Message), onStatus func(refresh.StatusBar)) *refresh.Loop {
	mon := a.Monitoring()
	return refresh.NewLoop(refresh.LoopConfig{
		Collector:         a.Collector,
		Refresher:         a.Refresher,
		Latest:            a.Latest,
		DashboardInterval: mon.DashboardEvery(),
		RefreshInterval:   mon.RefreshEvery(),
		OnUpdate:          onUpdate,
		OnStatus:          onStatus,
		Logger:            a.Logger,
	})
}
