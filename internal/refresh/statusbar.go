// Package refresh drives the periodic refresh paths: the status line plus
// the three tree views, and the headless scheduler that runs both the
// dashboard and the full refresh.
package refresh

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"aamonitor/internal/api"
)

type Level string

const (
	LevelNormal  Level = "normal"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

const (
	quotaWarnAbove  = 80
	quotaErrorAbove = 95
)

// StatusBar is the one-line summary shown outside the dashboard.
type StatusBar struct {
	Text      string `json:"text"`
	Level     Level  `json:"level"`
	Connected bool   `json:"connected"`
}

type StatusSource interface {
	CheckConnection(ctx context.Context) bool
	AutoAccept(ctx context.Context) (api.AutoAcceptStatus, error)
	QuotaSummary(ctx context.Context) (api.QuotaSummary, error)
}

func StartingStatus() StatusBar {
	return StatusBar{Text: "⟳ AA: Starting...", Level: LevelInfo}
}

func OfflineStatus() StatusBar {
	return StatusBar{Text: "⚠ AA: Offline", Level: LevelWarning}
}

func readyStatus() StatusBar {
	return StatusBar{Text: "ℹ AA: Ready", Level: LevelInfo, Connected: true}
}

// FormatStatus builds the connected status line. A missing max percentage
// counts as 0.
func FormatStatus(autoAccept bool, maxPercentage *float64) StatusBar {
	usage := 0.0
	if maxPercentage != nil {
		usage = api.ClampPercent(*maxPercentage)
	}
	mode, icon := "Manual", "⊘"
	if autoAccept {
		mode, icon = "Auto", "✔"
	}
	level := LevelNormal
	switch {
	case usage > quotaErrorAbove:
		level = LevelError
	case usage > quotaWarnAbove:
		level = LevelWarning
	}
	return StatusBar{
		Text:      fmt.Sprintf("📈 Quota: %.0f%% | %s AA: %s", usage, icon, mode),
		Level:     level,
		Connected: true,
	}
}

// ComputeStatus checks the connection, then reads auto-accept and quota in
// parallel. Either read failing yields the Ready fallback.
func ComputeStatus(ctx context.Context, src StatusSource) (StatusBar, error) {
	if !src.CheckConnection(ctx) {
		return OfflineStatus(), nil
	}
	var (
		aa    api.AutoAcceptStatus
		quota api.QuotaSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		aa, err = src.AutoAccept(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		quota, err = src.QuotaSummary(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return readyStatus(), fmt.Errorf("status bar: %w", err)
	}
	var maxPct *float64
	if quota.Summary != nil {
		maxPct = quota.Summary.MaxPercentage
	}
	return FormatStatus(aa.Enabled, maxPct), nil
}
