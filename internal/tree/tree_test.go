package tree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aamonitor/internal/api"
)

type fakeBackend struct {
	agents     api.AgentSummary
	agentsErr  error
	cache      api.CacheSummary
	cacheErr   error
	status     api.AutoAcceptStatus
	statusErr  error
	actions    []api.RecentAction
	actionsErr error
	lastLimit  int
}

func (f *fakeBackend) Agents(context.Context) (api.AgentSummary, error) { return f.agents, f.agentsErr }
func (f *fakeBackend) Cache(context.Context) (api.CacheSummary, error)  { return f.cache, f.cacheErr }

func (f *fakeBackend) AutoAccept(context.Context) (api.AutoAcceptStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeBackend) RecentActions(_ context.Context, limit int) ([]api.RecentAction, error) {
	f.lastLimit = limit
	return f.actions, f.actionsErr
}

func labels(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		item := n.Render()
		if item.Description != "" {
			out = append(out, item.Label+" | "+item.Description)
			continue
		}
		out = append(out, item.Label)
	}
	return out
}

func TestAgentsProviderRootsAndDetails(t *testing.T) {
	backend := &fakeBackend{agents: api.AgentSummary{TotalAgents: 2, Agents: []api.Agent{
		{Name: "coder", Type: "code", Status: "working", TasksCompleted: 12, TasksFailed: 1, SuccessRate: 92.3},
		{Name: "reviewer", Status: "Error"},
	}}}
	p := NewAgentsProvider(backend, nil)
	require.NoError(t, p.UpdateData(context.Background()))

	roots := p.GetChildren(nil)
	require.Len(t, roots, 2)
	first := roots[0].Render()
	assert.Equal(t, KindAgent, roots[0].Kind())
	assert.Equal(t, "sync~spin", first.Icon)
	assert.Equal(t, "blue", first.Color)
	assert.True(t, first.Collapsible)
	assert.Equal(t, "error", roots[1].Render().Icon)

	assert.Equal(t, []string{
		"Tâches complétées: 12",
		"Tâches échouées: 1",
		"Taux de succès: 92.3%",
	}, labels(p.GetChildren(roots[0])))
	assert.Empty(t, p.GetChildren(DetailNode{Label: "x"}))

	agent, ok := p.Agent("reviewer")
	assert.True(t, ok)
	assert.Equal(t, "Error", agent.Status)
}

func TestAgentIconDefaultsToCheck(t *testing.T) {
	for _, status := range []string{"idle", "", "sleeping"} {
		item := AgentNode{Agent: api.Agent{Name: "a", Status: status}}.Render()
		if item.Icon != "check" || item.Color != "green" {
			t.Fatalf("status %q: unexpected icon %s/%s", status, item.Icon, item.Color)
		}
	}
}

func TestAgentSuccessRateIsClamped(t *testing.T) {
	cases := map[float64]string{150: "100", -5: "0", 87.5: "87.5"}
	for rate, want := range cases {
		node := AgentNode{Agent: api.Agent{Name: "a", SuccessRate: rate}}
		assert.Equal(t, "Taux de succès: "+want+"%", node.details()[2].Render().Label)
		assert.Contains(t, node.Render().Tooltip, "Taux de succès: "+want+"%")
	}
}

func TestCacheGroupsUnknownAgentType(t *testing.T) {
	var summary api.CacheSummary
	raw := `{"total_entries":3,"total_size_mb":1.5,"entries":[{"agent_type":"coder"},{"agent_type":"coder"},{"agent_type":null}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &summary))

	p := NewCacheProvider(&fakeBackend{cache: summary}, nil)
	require.NoError(t, p.UpdateData(context.Background()))

	want := []string{
		"Total: 3 entrées | 1.50 MB",
		"coder | 2 entrées",
		"unknown | 1 entrées",
	}
	if diff := cmp.Diff(want, labels(p.GetChildren(nil))); diff != "" {
		t.Fatalf("cache nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupByAgentTypeKeepsFirstOccurrenceOrder(t *testing.T) {
	groups := GroupByAgentType([]api.CacheEntry{
		{AgentType: "tester"}, {AgentType: "coder"}, {AgentType: "tester"}, {AgentType: ""},
	})
	want := []CacheGroupNode{{AgentType: "tester", Count: 2}, {AgentType: "coder", Count: 1}, {AgentType: "unknown", Count: 1}}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheFailureResetsToEmpty(t *testing.T) {
	backend := &fakeBackend{cache: api.CacheSummary{TotalEntries: 2, Entries: []api.CacheEntry{{AgentType: "coder"}}}}
	p := NewCacheProvider(backend, nil)
	require.NoError(t, p.UpdateData(context.Background()))
	require.Len(t, p.GetChildren(nil), 2)

	backend.cacheErr = &api.ConnectionError{Cause: errors.New("refused")}
	require.Error(t, p.UpdateData(context.Background()))
	assert.Equal(t, []string{"Total: 0 entrées | 0.00 MB"}, labels(p.GetChildren(nil)))
}

func TestActionsProviderShowsTenNewest(t *testing.T) {
	actions := make([]api.RecentAction, 0, 15)
	for i := 0; i < 15; i++ {
		actions = append(actions, api.RecentAction{ActionType: fmt.Sprintf("edit-%02d", i), Accepted: i%2 == 0})
	}
	backend := &fakeBackend{
		status:  api.AutoAcceptStatus{Enabled: true, Statistics: &api.AutoAcceptStats{TotalProcessed: 15, AutoAccepted: 8, Rejected: 7}},
		actions: actions,
	}
	p := NewActionsProvider(backend, nil)
	require.NoError(t, p.UpdateData(context.Background()))
	assert.Equal(t, 20, backend.lastLimit)

	got := labels(p.GetChildren(nil))
	require.Len(t, got, 13)
	assert.Equal(t, []string{"Traités: 15", "Acceptés: 8", "Rejetés: 7"}, got[:3])
	assert.Equal(t, "edit-00 | Accepté", got[3])
	assert.Equal(t, "edit-01 | Rejeté", got[4])
	assert.Equal(t, "edit-09 | Rejeté", got[12])
}

func TestActionsFailureZeroesState(t *testing.T) {
	backend := &fakeBackend{
		status:  api.AutoAcceptStatus{Statistics: &api.AutoAcceptStats{TotalProcessed: 4, AutoAccepted: 3, Rejected: 1}},
		actions: []api.RecentAction{{ActionType: "edit", Accepted: true}},
	}
	p := NewActionsProvider(backend, nil)
	require.NoError(t, p.UpdateData(context.Background()))
	require.Len(t, p.GetChildren(nil), 4)

	backend.statusErr = &api.TimeoutError{Method: "GET", Path: "/api/auto-accept"}
	err := p.UpdateData(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsTimeout(err))
	assert.Equal(t, []string{"Traités: 0", "Acceptés: 0", "Rejetés: 0"}, labels(p.GetChildren(nil)))
}

func TestActionsPartialFailureDoesNotKeepStats(t *testing.T) {
	backend := &fakeBackend{
		status:     api.AutoAcceptStatus{Statistics: &api.AutoAcceptStats{TotalProcessed: 4}},
		actionsErr: errors.New("boom"),
	}
	p := NewActionsProvider(backend, nil)
	require.Error(t, p.UpdateData(context.Background()))
	assert.Equal(t, "Traités: 0", p.GetChildren(nil)[0].Render().Label)
}

func TestActionNodeLabelsAndTooltip(t *testing.T) {
	item := ActionNode{Action: api.RecentAction{Timestamp: "2026-10-19T08:30:00"}}.Render()
	assert.Equal(t, "unknown", item.Label)
	assert.Equal(t, "x", item.Icon)
	assert.Equal(t, "red", item.Color)
	assert.Equal(t, "unknown\nDate: 19/10/2026 08:30:00", item.Tooltip)
}

func TestUpdateDataNotifiesSubscribersEvenOnError(t *testing.T) {
	backend := &fakeBackend{agentsErr: errors.New("down")}
	p := NewAgentsProvider(backend, nil)
	calls := 0
	cancel := p.Subscribe(func() { calls++ })

	require.Error(t, p.UpdateData(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Empty(t, p.GetChildren(nil))

	cancel()
	cancel()
	p.Refresh()
	assert.Equal(t, 1, calls)
}

func TestProvidersSatisfyInterface(t *testing.T) {
	backend := &fakeBackend{}
	for _, p := range []Provider{
		NewAgentsProvider(backend, nil),
		NewCacheProvider(backend, nil),
		NewActionsProvider(backend, nil),
	} {
		assert.NoError(t, p.UpdateData(context.Background()))
	}
}
