package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"aamonitor/internal/dashboard"
)

const (
	DefaultDashboardInterval = 5 * time.Second
	DefaultRefreshInterval   = 10 * time.Second
)

type SnapshotCollector interface {
	Collect(ctx context.Context) *dashboard.Snapshot
}

type LoopConfig struct {
	Collector         SnapshotCollector
	Refresher         *Refresher
	Latest            *dashboard.Latest
	DashboardInterval time.Duration
	RefreshInterval   time.Duration
	// OnUpdate receives every applied snapshot as a host to view message.
	OnUpdate func(dashboard.Message)
	// OnStatus receives every computed status line.
	OnStatus func(StatusBar)
	Logger   *zap.Logger
}

// Loop is the headless scheduler. Ticks are not coalesced: a slow job does
// not delay the next one, and Latest discards snapshots that finish out of
// order.
type Loop struct {
	cfg    LoopConfig
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	entries []cron.EntryID
	initial sync.WaitGroup
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DashboardInterval <= 0 {
		cfg.DashboardInterval = DefaultDashboardInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Latest == nil {
		cfg.Latest = &dashboard.Latest{}
	}
	logger := cfg.Logger.Named("loop")
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &Loop{
		cfg:    cfg,
		logger: logger,
		cron:   cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Start schedules both paths and runs each once immediately.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	jobs := []struct {
		every time.Duration
		run   func(context.Context)
	}{
		{l.cfg.DashboardInterval, l.RunDashboard},
		{l.cfg.RefreshInterval, l.RunRefresh},
	}
	for _, job := range jobs {
		run := job.run
		id, err := l.cron.AddFunc(fmt.Sprintf("@every %s", job.every), func() { run(ctx) })
		if err != nil {
			for _, added := range l.entries {
				l.cron.Remove(added)
			}
			l.entries = nil
			return fmt.Errorf("schedule every %s: %w", job.every, err)
		}
		l.entries = append(l.entries, id)
	}
	l.cron.Start()
	l.running = true
	l.logger.Info("loop started",
		zap.Duration("dashboard_interval", l.cfg.DashboardInterval),
		zap.Duration("refresh_interval", l.cfg.RefreshInterval),
	)

	for _, job := range jobs {
		l.initial.Add(1)
		go func(run func(context.Context)) {
			defer l.initial.Done()
			run(ctx)
		}(job.run)
	}
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	<-l.cron.Stop().Done()
	l.initial.Wait()
	l.running = false
	l.logger.Info("loop stopped")
}

func (l *Loop) RunDashboard(ctx context.Context) {
	if l.cfg.Collector == nil {
		return
	}
	snap := l.cfg.Collector.Collect(ctx)
	if !l.cfg.Latest.Apply(snap) {
		l.logger.Debug("dropped stale snapshot", zap.Uint64("seq", snap.Seq))
		return
	}
	if l.cfg.OnUpdate != nil {
		l.cfg.OnUpdate(dashboard.UpdateMessage(snap))
	}
}

func (l *Loop) RunRefresh(ctx context.Context) {
	if l.cfg.Refresher == nil {
		return
	}
	status, err := l.cfg.Refresher.RefreshAll(ctx)
	if err != nil {
		l.logger.Debug("refresh finished with errors", zap.Error(err))
	}
	if l.cfg.OnStatus != nil {
		l.cfg.OnStatus(status)
	}
}
