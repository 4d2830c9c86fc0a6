package tree

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"aamonitor/internal/api"
)

const unknownAgentType = "unknown"

type CacheSource interface {
	Cache(ctx context.Context) (api.CacheSummary, error)
}

type CacheProvider struct {
	emitter
	source CacheSource
	logger *zap.Logger

	mu    sync.RWMutex
	cache api.CacheSummary
}

func NewCacheProvider(source CacheSource, logger *zap.Logger) *CacheProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheProvider{source: source, logger: logger.Named("tree.cache")}
}

func (p *CacheProvider) UpdateData(ctx context.Context) error {
	summary, err := p.source.Cache(ctx)
	p.mu.Lock()
	if err != nil {
		p.cache = api.CacheSummary{}
	} else {
		p.cache = summary
	}
	p.mu.Unlock()
	p.Refresh()
	if err != nil {
		p.logger.Warn("failed to fetch cache", zap.Error(err))
		return fmt.Errorf("fetch cache: %w", err)
	}
	return nil
}

// GetChildren lists the summary then one group per agent type, in order of
// first appearance. Groups have no children.
func (p *CacheProvider) GetChildren(parent Node) []Node {
	if parent != nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	nodes := []Node{CacheSummaryNode{TotalEntries: p.cache.TotalEntries, TotalSizeMB: p.cache.TotalSizeMB}}
	for _, g := range GroupByAgentType(p.cache.Entries) {
		nodes = append(nodes, g)
	}
	return nodes
}

func GroupByAgentType(entries []api.CacheEntry) []CacheGroupNode {
	var groups []CacheGroupNode
	index := map[string]int{}
	for _, e := range entries {
		key := e.AgentType
		if strings.TrimSpace(key) == "" {
			key = unknownAgentType
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, CacheGroupNode{AgentType: key})
		}
		groups[i].Count++
	}
	return groups
}
