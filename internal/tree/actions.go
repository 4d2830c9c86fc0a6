package tree

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aamonitor/internal/api"
)

const (
	actionsFetchLimit = 20
	actionsShown      = 10
)

type ActionsSource interface {
	AutoAccept(ctx context.Context) (api.AutoAcceptStatus, error)
	RecentActions(ctx context.Context, limit int) ([]api.RecentAction, error)
}

type ActionsProvider struct {
	emitter
	source ActionsSource
	logger *zap.Logger

	mu      sync.RWMutex
	stats   api.AutoAcceptStats
	actions []api.RecentAction
}

func NewActionsProvider(source ActionsSource, logger *zap.Logger) *ActionsProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionsProvider{source: source, logger: logger.Named("tree.actions")}
}

func (p *ActionsProvider) UpdateData(ctx context.Context) error {
	stats, actions, err := p.fetch(ctx)
	p.mu.Lock()
	p.stats, p.actions = stats, actions
	p.mu.Unlock()
	p.Refresh()
	if err != nil {
		p.logger.Warn("failed to fetch actions", zap.Error(err))
		return err
	}
	return nil
}

// fetch returns zero values on any failure so a partial result never shows.
func (p *ActionsProvider) fetch(ctx context.Context) (api.AutoAcceptStats, []api.RecentAction, error) {
	status, err := p.source.AutoAccept(ctx)
	if err != nil {
		return api.AutoAcceptStats{}, nil, fmt.Errorf("fetch auto-accept status: %w", err)
	}
	actions, err := p.source.RecentActions(ctx, actionsFetchLimit)
	if err != nil {
		return api.AutoAcceptStats{}, nil, fmt.Errorf("fetch recent actions: %w", err)
	}
	var stats api.AutoAcceptStats
	if status.Statistics != nil {
		stats = *status.Statistics
	}
	return stats, actions, nil
}

// GetChildren lists the three counters then the newest actions in backend
// order.
func (p *ActionsProvider) GetChildren(parent Node) []Node {
	if parent != nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	nodes := []Node{
		StatNode{Label: "Traités", Value: p.stats.TotalProcessed, Icon: "pulse"},
		StatNode{Label: "Acceptés", Value: p.stats.AutoAccepted, Icon: "check"},
		StatNode{Label: "Rejetés", Value: p.stats.Rejected, Icon: "x"},
	}
	shown := p.actions
	if len(shown) > actionsShown {
		shown = shown[:actionsShown]
	}
	for _, a := range shown {
		nodes = append(nodes, ActionNode{Action: a})
	}
	return nodes
}
