// Package dashboard turns polled backend state into the dashboard view.
//
// A Snapshot is one complete poll result. Render maps it to a View without
// side effects; Paint draws a View for a terminal. Collector builds
// snapshots and Latest keeps the most recent one.
package dashboard

import (
	"sync"
	"time"

	"aamonitor/internal/api"
)

// Snapshot is rebuilt on every poll and never persisted.
type Snapshot struct {
	Seq         uint64                `json:"seq,omitempty"`
	Connected   bool                  `json:"connected"`
	Agents      *api.AgentSummary     `json:"agents,omitempty"`
	Quota       *api.Quota            `json:"quota,omitempty"`
	Cache       *api.CacheSummary     `json:"cache,omitempty"`
	Metrics     *api.SystemMetrics    `json:"metrics,omitempty"`
	Tasks       []api.Task            `json:"tasks,omitempty"`
	ProjectName string                `json:"project_name,omitempty"`
	AutoAccept  *api.AutoAcceptStatus `json:"auto_accept,omitempty"`
	LastError   string                `json:"last_error,omitempty"`
	CollectedAt time.Time             `json:"collected_at"`
}

// Latest holds the last applied snapshot. A snapshot issued before the one
// already applied is dropped, so a slow poll cannot overwrite a newer view.
type Latest struct {
	mu      sync.RWMutex
	snap    *Snapshot
	applied uint64
}

// Apply stores s unless it is older than the current one. Snapshots without
// a sequence number always apply.
func (l *Latest) Apply(s *Snapshot) bool {
	if s == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.Seq != 0 && s.Seq < l.applied {
		return false
	}
	l.snap = s
	if s.Seq > l.applied {
		l.applied = s.Seq
	}
	return true
}

// Get returns the last applied snapshot, nil before the first one.
func (l *Latest) Get() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}
