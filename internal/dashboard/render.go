package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"aamonitor/internal/api"
)

type BadgeState string

const (
	BadgeConnecting   BadgeState = "connecting"
	BadgeConnected    BadgeState = "connected"
	BadgeDisconnected BadgeState = "disconnected"
)

var badgeLabels = map[BadgeState]string{
	BadgeConnecting:   "Connexion...",
	BadgeConnected:    "Connecté",
	BadgeDisconnected: "Déconnecté",
}

type Badge struct {
	State BadgeState `json:"state"`
	Label string     `json:"label"`
}

type Overview struct {
	Agents       int     `json:"agents"`
	CacheEntries int     `json:"cache_entries"`
	CacheSizeMB  float64 `json:"cache_size_mb"`
	Tasks        int     `json:"tasks"`
}

type AgentRow struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status"`
	Class  string `json:"class"`
}

// MetricCircle is one system metric indicator. Percent is only meaningful
// when Available is set.
type MetricCircle struct {
	Label     string  `json:"label"`
	Value     string  `json:"value"`
	Percent   float64 `json:"percent"`
	Available bool    `json:"available"`
}

type TaskRow struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Agent       string `json:"agent,omitempty"`
	Icon        string `json:"icon"`
	Class       string `json:"class"`
}

type TaskPanel struct {
	Visible     bool      `json:"visible"`
	ProjectName string    `json:"project_name,omitempty"`
	Rows        []TaskRow `json:"rows,omitempty"`
}

type AutoAcceptPanel struct {
	Enabled   bool `json:"enabled"`
	Processed int  `json:"processed"`
	Accepted  int  `json:"accepted"`
	Rejected  int  `json:"rejected"`
}

// View is the fully resolved dashboard, ready to paint.
type View struct {
	Badge      Badge           `json:"badge"`
	Overview   Overview        `json:"overview"`
	Agents     []AgentRow      `json:"agents,omitempty"`
	Quota      QuotaView       `json:"quota"`
	Metrics    []MetricCircle  `json:"metrics"`
	Tasks      TaskPanel       `json:"tasks"`
	AutoAccept AutoAcceptPanel `json:"auto_accept"`
	LastError  string          `json:"last_error,omitempty"`
	UpdatedAt  string          `json:"updated_at"`
}

// Render maps a snapshot to its view. A nil snapshot is the state before the
// first poll completes. Render never mutates snap.
func Render(snap *Snapshot, now time.Time) View {
	if snap == nil {
		return View{
			Badge:     Badge{State: BadgeConnecting, Label: badgeLabels[BadgeConnecting]},
			Quota:     renderQuota(nil, now),
			Metrics:   renderMetrics(nil),
			UpdatedAt: "--",
		}
	}

	state := BadgeDisconnected
	if snap.Connected {
		state = BadgeConnected
	}
	v := View{
		Badge:      Badge{State: state, Label: badgeLabels[state]},
		Overview:   renderOverview(snap),
		Agents:     renderAgents(snap.Agents),
		Quota:      renderQuota(snap.Quota, now),
		Metrics:    renderMetrics(snap.Metrics),
		Tasks:      renderTasks(snap.Tasks, snap.ProjectName),
		AutoAccept: renderAutoAccept(snap.AutoAccept),
		LastError:  snap.LastError,
		UpdatedAt:  now.Format("15:04:05"),
	}
	return v
}

func renderOverview(snap *Snapshot) Overview {
	var o Overview
	if snap.Agents != nil {
		o.Agents = snap.Agents.TotalAgents
	}
	if snap.Cache != nil {
		o.CacheEntries = snap.Cache.TotalEntries
		o.CacheSizeMB = snap.Cache.TotalSizeMB
	}
	o.Tasks = len(snap.Tasks)
	return o
}

// AgentClass selects the status indicator for an agent.
func AgentClass(status string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case "idle", "working", "error":
		return s
	default:
		return "idle"
	}
}

func renderAgents(summary *api.AgentSummary) []AgentRow {
	if summary == nil || len(summary.Agents) == 0 {
		return nil
	}
	rows := make([]AgentRow, 0, len(summary.Agents))
	for _, a := range summary.Agents {
		status := a.Status
		if strings.TrimSpace(status) == "" {
			status = "idle"
		}
		rows = append(rows, AgentRow{
			Name:   a.Name,
			Type:   a.Type,
			Status: status,
			Class:  AgentClass(a.Status),
		})
	}
	return rows
}

func renderMetrics(m *api.SystemMetrics) []MetricCircle {
	var cpu, mem, gpu, vram *float64
	if m != nil {
		cpu, mem, gpu, vram = m.CPUPercent, m.MemoryPercent, m.GPUPercent, m.GPUMemoryPercent
	}
	return []MetricCircle{
		metricCircle("CPU", cpu),
		metricCircle("Mémoire", mem),
		metricCircle("GPU", gpu),
		metricCircle("VRAM", vram),
	}
}

func metricCircle(label string, value *float64) MetricCircle {
	if value == nil || math.IsNaN(*value) {
		return MetricCircle{Label: label, Value: "N/A"}
	}
	p := api.ClampPercent(*value)
	return MetricCircle{
		Label:     label,
		Value:     fmt.Sprintf("%d%%", int(math.Round(p))),
		Percent:   p,
		Available: true,
	}
}

var taskIcons = map[string]string{
	api.TaskPending:    "⏳",
	api.TaskInProgress: "🏃",
	api.TaskCompleted:  "✅",
	api.TaskFailed:     "❌",
}

// TaskIcon returns the glyph for a task status; unknown statuses wait.
func TaskIcon(status string) string {
	if icon, ok := taskIcons[status]; ok {
		return icon
	}
	return taskIcons[api.TaskPending]
}

func renderTasks(tasks []api.Task, project string) TaskPanel {
	if len(tasks) == 0 {
		return TaskPanel{}
	}
	rows := make([]TaskRow, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, TaskRow{
			ID:          t.ID,
			Description: t.Description,
			Status:      t.Status,
			Agent:       t.Agent,
			Icon:        TaskIcon(t.Status),
			Class:       "status-" + strings.ToLower(t.Status),
		})
	}
	return TaskPanel{Visible: true, ProjectName: project, Rows: rows}
}

func renderAutoAccept(status *api.AutoAcceptStatus) AutoAcceptPanel {
	if status == nil {
		return AutoAcceptPanel{}
	}
	p := AutoAcceptPanel{Enabled: status.Enabled}
	if s := status.Statistics; s != nil {
		p.Processed = s.TotalProcessed
		p.Accepted = s.AutoAccepted
		p.Rejected = s.Rejected
	}
	return p
}
