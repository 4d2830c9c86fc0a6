package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aamonitor/internal/api"
	"aamonitor/internal/config"
	"aamonitor/internal/dashboard"
	"aamonitor/internal/tree"
)

var (
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrMissingDescription   = errors.New("task description required")
)

// Outcome is what a handled intent produced. Snapshot is set when the
// dashboard was re-collected and applied.
type Outcome struct {
	Notice      string
	Snapshot    *dashboard.Snapshot
	Task        *api.TaskSubmission
	Diagnostics *api.Object
}

// Dispatch performs one view intent and the follow-up refreshes it implies.
func (a *App) Dispatch(ctx context.Context, msg dashboard.Message) (Outcome, error) {
	intent, ok := msg.Intent()
	if !ok {
		return Outcome{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	logger := a.Logger.With(zap.String("intent", string(intent)))
	logger.Debug("dispatch")

	switch intent {
	case dashboard.IntentRefresh:
		return Outcome{Snapshot: a.collect(ctx)}, nil

	case dashboard.IntentToggleAutoAccept:
		status, err := a.Client.ToggleAutoAccept(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("toggle auto-accept: %w", err)
		}
		a.update(ctx, logger, a.Actions)
		return Outcome{
			Notice:   nonEmpty(status.Message, "Auto-Accept "+onOff(status.Enabled)),
			Snapshot: a.collect(ctx),
		}, nil

	case dashboard.IntentExecuteTask:
		desc := strings.TrimSpace(msg.Description)
		if desc == "" {
			return Outcome{}, ErrMissingDescription
		}
		project := a.project()
		sub, err := a.Client.ExecuteTask(ctx, desc, project.Path, project.Name)
		if err != nil {
			return Outcome{}, fmt.Errorf("execute task: %w", err)
		}
		if sub.TaskID != "" {
			a.Tracker.Track(sub.TaskID, desc, project.Name)
		}
		a.update(ctx, logger, a.Agents)
		return Outcome{
			Notice:   "Tâche démarrée: " + sub.TaskID,
			Task:     &sub,
			Snapshot: a.collect(ctx),
		}, nil

	case dashboard.IntentClearCache:
		if !msg.Confirm {
			return Outcome{}, ErrConfirmationRequired
		}
		res, err := a.Client.ClearCache(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("clear cache: %w", err)
		}
		a.update(ctx, logger, a.Cache)
		return Outcome{Notice: actionNotice(res, "Cache vidé"), Snapshot: a.collect(ctx)}, nil

	case dashboard.IntentAutoCleanCache:
		res, err := a.Client.AutoCleanCache(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("auto-clean cache: %w", err)
		}
		a.update(ctx, logger, a.Cache)
		return Outcome{Notice: actionNotice(res, "Nettoyage terminé"), Snapshot: a.collect(ctx)}, nil

	case dashboard.IntentRunDiagnostics:
		report, err := a.Client.RunDiagnostics(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("run diagnostics: %w", err)
		}
		return Outcome{Notice: "Diagnostics terminés", Diagnostics: &report}, nil

	case dashboard.IntentRestartAgent:
		name := strings.TrimSpace(msg.Agent)
		if name == "" {
			return Outcome{}, fmt.Errorf("%s requires an agent name", intent)
		}
		res, err := a.Client.RestartAgent(ctx, name)
		if err != nil {
			return Outcome{}, fmt.Errorf("restart agent %s: %w", name, err)
		}
		a.update(ctx, logger, a.Agents)
		return Outcome{Notice: actionNotice(res, "Agent "+name+" redémarré")}, nil
	}
	return Outcome{}, fmt.Errorf("unhandled intent %q", intent)
}

// collect gathers a snapshot and applies it; a stale one is dropped and the
// current state returned instead.
func (a *App) collect(ctx context.Context) *dashboard.Snapshot {
	snap := a.Collector.Collect(ctx)
	if !a.Latest.Apply(snap) {
		return a.Latest.Get()
	}
	return snap
}

func (a *App) update(ctx context.Context, logger *zap.Logger, p tree.Provider) {
	if err := p.UpdateData(ctx); err != nil {
		logger.Warn("follow-up refresh failed", zap.Error(err))
	}
}

func (a *App) project() config.ProjectConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Config.Project
}

func actionNotice(res api.ActionResult, fallback string) string {
	return nonEmpty(res.Message, fallback)
}

func nonEmpty(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
