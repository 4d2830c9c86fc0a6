package tree

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aamonitor/internal/api"
)

type AgentsSource interface {
	Agents(ctx context.Context) (api.AgentSummary, error)
}

type AgentsProvider struct {
	emitter
	source AgentsSource
	logger *zap.Logger

	mu     sync.RWMutex
	agents []api.Agent
}

func NewAgentsProvider(source AgentsSource, logger *zap.Logger) *AgentsProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentsProvider{source: source, logger: logger.Named("tree.agents")}
}

func (p *AgentsProvider) UpdateData(ctx context.Context) error {
	summary, err := p.source.Agents(ctx)
	p.mu.Lock()
	if err != nil {
		p.agents = nil
	} else {
		p.agents = summary.Agents
	}
	p.mu.Unlock()
	p.Refresh()
	if err != nil {
		p.logger.Warn("failed to fetch agents", zap.Error(err))
		return fmt.Errorf("fetch agents: %w", err)
	}
	return nil
}

func (p *AgentsProvider) GetChildren(parent Node) []Node {
	if parent != nil {
		if agent, ok := parent.(AgentNode); ok {
			return agent.details()
		}
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	nodes := make([]Node, 0, len(p.agents))
	for _, a := range p.agents {
		nodes = append(nodes, AgentNode{Agent: a})
	}
	return nodes
}

// Agent returns the current state of the named agent.
func (p *AgentsProvider) Agent(name string) (api.Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, a := range p.agents {
		if a.Name == name {
			return a, true
		}
	}
	return api.Agent{}, false
}
