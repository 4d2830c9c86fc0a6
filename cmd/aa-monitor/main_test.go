package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"aamonitor/internal/api"
	"aamonitor/internal/app"
	"aamonitor/internal/config"
	"aamonitor/internal/dashboard"
	"aamonitor/internal/refresh"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	routes := map[string]string{
		"GET /api/system/health":       `{"status":"healthy","framework":"fastapi","version":"1.2.0"}`,
		"GET /api/dashboard":           `{"agents":{"total_agents":1,"agents":[{"name":"coder","status":"idle"}]},"cache":{"total_entries":2,"total_size_mb":0.5}}`,
		"GET /api/system/metrics":      `{"cpu_percent":10}`,
		"GET /api/auto-accept":         `{"enabled":true,"statistics":{"total_processed":5,"auto_accepted":4,"rejected":1}}`,
		"GET /api/auto-accept/actions": `[{"action_type":"edit","accepted":true,"timestamp":"2026-01-02T10:00:00"}]`,
		"GET /api/agents":              `{"total_agents":1,"agents":[{"name":"coder","type":"code","status":"working","tasks_completed":3,"tasks_failed":1,"success_rate":75}]}`,
		"GET /api/cache":               `{"total_entries":2,"total_size_mb":0.5,"entries":[{"agent_type":"coder"},{"agent_type":"coder"}]}`,
		"GET /api/dashboard/quota":     `{"external":{},"summary":{"max_percentage":42}}`,
		"POST /api/system/diagnostics": `{"status":"ok","checks":{"gpu":false}}`,
	}
	for pattern, body := range routes {
		body := body
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	root, c := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	full := append([]string{"--base-url", baseURL, "--log-file", filepath.Join(t.TempDir(), "aa.log")}, args...)
	root.SetArgs(full)
	err := root.Execute()
	if closeErr := c.teardown(); closeErr != nil {
		t.Fatalf("teardown: %v", closeErr)
	}
	return out.String(), err
}

func TestAgentsCommandPrintsTree(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, srv.URL, "agents")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{"⟳ coder  working", "  • Tâches complétées: 3", "  ⚠ Tâches échouées: 1", "  📈 Taux de succès: 75%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCacheCommandGroupsEntries(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, srv.URL, "cache")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "Total: 2 entrées") || !strings.Contains(out, "📁 coder  2 entrées") {
		t.Fatalf("unexpected cache output:\n%s", out)
	}
}

func TestCacheClearNeedsYes(t *testing.T) {
	srv := fakeServer(t)
	_, err := runCLI(t, srv.URL, "cache", "clear")
	if !errors.Is(err, app.ErrConfirmationRequired) {
		t.Fatalf("expected confirmation error, got %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, srv.URL, "status")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.TrimSpace(out) != "📈 Quota: 42% | ✔ AA: Auto" {
		t.Fatalf("unexpected status %q", out)
	}
}

func TestDashboardJSONIsUpdateMessage(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, srv.URL, "dashboard", "--json")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var msg dashboard.Message
	if err := json.Unmarshal([]byte(out), &msg); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if msg.Type != dashboard.MessageUpdate || msg.Data == nil || !msg.Data.Connected {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Data.Agents == nil || msg.Data.Agents.TotalAgents != 1 {
		t.Fatalf("expected agents in snapshot, got %+v", msg.Data.Agents)
	}
}

func TestDiagnosticsYAML(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, srv.URL, "diagnostics", "--format", "yaml")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "status: ok\nchecks:\n  gpu: false\n" {
		t.Fatalf("unexpected report %q", out)
	}
}

func TestHealthCommandOffline(t *testing.T) {
	_, err := runCLI(t, "http://127.0.0.1:1", "--timeout", "200ms", "health")
	if err == nil || !strings.HasPrefix(err.Error(), "connection") {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestAutoAcceptRejectsUnknownArg(t *testing.T) {
	srv := fakeServer(t)
	if _, err := runCLI(t, srv.URL, "auto-accept", "maybe"); err == nil {
		t.Fatalf("expected invalid argument error")
	}
}

func testModel(t *testing.T) model {
	t.Helper()
	cfg := &config.Config{
		API:        config.APIConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond},
		Monitoring: config.MonitoringConfig{Enabled: true, RefreshInterval: 10000, DashboardInterval: 5000},
		Project:    config.ProjectConfig{Path: "./workspace", Name: "Demo"},
	}
	a := app.New(cfg, nil, app.Options{})
	t.Cleanup(func() { _ = a.Close() })
	m := newModel(a)
	m.now = func() time.Time { return time.Date(2026, 3, 4, 9, 30, 0, 0, time.Local) }
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model)
}

func press(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		m, cmd = next.(model), c
	}
	return m, cmd
}

func TestTabCycling(t *testing.T) {
	m := testModel(t)
	m, _ = press(t, m, "tab", "tab")
	if m.activeTab != tabCache {
		t.Fatalf("expected cache tab, got %d", m.activeTab)
	}
	m, _ = press(t, m, "6")
	if m.activeTab != tabHelp {
		t.Fatalf("expected help tab, got %d", m.activeTab)
	}
	m, _ = press(t, m, "tab")
	if m.activeTab != tabDashboard {
		t.Fatalf("expected wrap to dashboard, got %d", m.activeTab)
	}
}

func TestClearCacheAsksFirst(t *testing.T) {
	m := testModel(t)
	m, cmd := press(t, m, "c")
	if !m.clearConfirm || m.inflight || cmd != nil {
		t.Fatalf("expected confirmation modal without dispatch")
	}
	if !strings.Contains(m.View(), "VIDER LE CACHE") {
		t.Fatalf("expected modal in view")
	}
	m, _ = press(t, m, "n")
	if m.clearConfirm || m.inflight {
		t.Fatalf("expected modal closed without dispatch")
	}
	m, cmd = press(t, m, "c", "o")
	if m.clearConfirm || !m.inflight || cmd == nil {
		t.Fatalf("expected clear dispatched after confirmation")
	}
}

func TestQuitConfirm(t *testing.T) {
	m := testModel(t)
	m, _ = press(t, m, "q")
	if !m.quitConfirm {
		t.Fatalf("expected quit confirmation")
	}
	_, cmd := press(t, m, "y")
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestTaskInputSubmitsAndCancels(t *testing.T) {
	m := testModel(t)
	m, _ = press(t, m, "t")
	if !m.taskInput {
		t.Fatalf("expected task input")
	}
	m, cmd := press(t, m, "enter")
	if cmd != nil || m.inflight {
		t.Fatalf("empty description must not be sent")
	}
	m, _ = press(t, m, "b", "u", "i", "l", "d")
	if m.input.Value() != "build" {
		t.Fatalf("expected typed description, got %q", m.input.Value())
	}
	m, cmd = press(t, m, "enter")
	if m.taskInput || !m.inflight || cmd == nil {
		t.Fatalf("expected task dispatched")
	}

	m.inflight = false
	m, _ = press(t, m, "t", "x", "esc")
	if m.taskInput || m.input.Value() != "" {
		t.Fatalf("expected task input cancelled and cleared")
	}
}

func TestTickSkippedWhenMonitoringDisabled(t *testing.T) {
	m := testModel(t)
	m.monitoring.Enabled = false
	next, cmd := m.Update(dashboardTickMsg(time.Now()))
	m = next.(model)
	if m.polls != 0 {
		t.Fatalf("collect must not start when monitoring is disabled")
	}
	if cmd == nil {
		t.Fatalf("expected the next tick to be scheduled")
	}

	m.monitoring.Enabled = true
	next, _ = m.Update(dashboardTickMsg(time.Now()))
	if next.(model).polls != 1 {
		t.Fatalf("expected collect when monitoring is enabled")
	}
}

func TestTicksOverlapInFlightPolls(t *testing.T) {
	m := testModel(t)
	m.polls = 2
	next, cmd := m.Update(dashboardTickMsg(time.Now()))
	m = next.(model)
	if got := batchLen(t, cmd); got != 2 {
		t.Fatalf("expected collect plus next tick, got %d commands", got)
	}
	next, cmd = m.Update(refreshTickMsg(time.Now()))
	m = next.(model)
	if got := batchLen(t, cmd); got != 2 {
		t.Fatalf("expected refresh plus next tick, got %d commands", got)
	}
	if m.polls != 4 {
		t.Fatalf("expected 4 polls in flight, got %d", m.polls)
	}
}

func TestManualRefreshRunsWhilePollsInFlight(t *testing.T) {
	m := testModel(t)
	m.polls = 2
	m, cmd := press(t, m, "r")
	if got := batchLen(t, cmd); got != 2 {
		t.Fatalf("expected collect and refresh requests, got %d commands", got)
	}
	if m.polls != 4 {
		t.Fatalf("expected 4 polls in flight, got %d", m.polls)
	}

	next, _ := m.Update(snapshotMsg{})
	next, _ = next.(model).Update(refreshDoneMsg{status: refresh.OfflineStatus()})
	if got := next.(model).polls; got != 2 {
		t.Fatalf("expected 2 polls left, got %d", got)
	}
}

// batchLen counts the commands of a batch without running them.
func batchLen(t *testing.T, cmd tea.Cmd) int {
	t.Helper()
	if cmd == nil {
		return 0
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected a batch of commands")
	}
	return len(batch)
}

func TestSnapshotRendersDashboard(t *testing.T) {
	m := testModel(t)
	if !strings.Contains(m.View(), "Connexion...") {
		t.Fatalf("expected connecting badge before first snapshot")
	}
	snap := &dashboard.Snapshot{
		Seq:       1,
		Connected: true,
		Agents:    &api.AgentSummary{TotalAgents: 1, Agents: []api.Agent{{Name: "coder", Status: "idle"}}},
	}
	next, _ := m.Update(snapshotMsg{snap: snap})
	m = next.(model)
	view := m.View()
	if !strings.Contains(view, "Connecté") || !strings.Contains(view, "coder") {
		t.Fatalf("expected connected dashboard, got:\n%s", view)
	}

	next, _ = m.Update(snapshotMsg{snap: &dashboard.Snapshot{Seq: 2}})
	m = next.(model)
	if m.status.Text != "⚠ AA: Offline" {
		t.Fatalf("expected offline status, got %q", m.status.Text)
	}
}

func TestConfigReloadAppliesMonitoring(t *testing.T) {
	m := testModel(t)
	cfg := *m.app.Config
	cfg.Monitoring = config.MonitoringConfig{Enabled: false, RefreshInterval: 30000, DashboardInterval: 2000}
	next, _ := m.Update(configReloadedMsg{cfg: &cfg})
	m = next.(model)
	if m.monitoring.Enabled || m.monitoring.DashboardEvery() != 2*time.Second {
		t.Fatalf("expected monitoring settings applied, got %+v", m.monitoring)
	}
	if m.app.Monitoring().RefreshInterval != 30000 {
		t.Fatalf("expected app config updated")
	}
}

func TestActionErrorShownInStatus(t *testing.T) {
	m := testModel(t)
	m.inflight = true
	next, _ := m.Update(actionDoneMsg{intent: dashboard.IntentClearCache, err: errors.New("boom")})
	m = next.(model)
	if m.inflight || m.statusLine != "error: boom" {
		t.Fatalf("unexpected state inflight=%v status=%q", m.inflight, m.statusLine)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 5); got != "ab..." {
		t.Fatalf("expected ab..., got %q", got)
	}
	if got := compactSingleLine("a\n  b\tc", 10); got != "a b c" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
	if got := truncate("héllo", 10); got != "héllo" {
		t.Fatalf("expected unchanged, got %q", got)
	}
}
