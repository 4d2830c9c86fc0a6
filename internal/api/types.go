package api

import (
	"strings"
	"time"
)

// Health is the /api/system/health payload.
type Health struct {
	Status    string `json:"status"`
	Framework string `json:"framework,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Agent is one row of the agents summary.
type Agent struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksFailed    int     `json:"tasks_failed"`
	TotalTasks     int     `json:"total_tasks,omitempty"`
	SuccessRate    float64 `json:"success_rate"`
	LastActivity   string  `json:"last_activity,omitempty"`
	CurrentTask    string  `json:"current_task,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

type AgentSummary struct {
	TotalAgents int     `json:"total_agents"`
	Agents      []Agent `json:"agents"`
}

// CreditPool is a prompt or flow credit pool reported by the language server.
// Percentage is the consumed share, 0-100.
type CreditPool struct {
	Available  float64  `json:"available"`
	Total      float64  `json:"total"`
	Percentage *float64 `json:"percentage"`
}

type QuotaModel struct {
	Name                string   `json:"name"`
	ModelID             string   `json:"model_id,omitempty"`
	RemainingPercentage *float64 `json:"remaining_percentage,omitempty"`
	UsagePercentage     *float64 `json:"usage_percentage"`
	ResetTime           string   `json:"reset_time,omitempty"`
}

type QuotaUser struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

// SourceLanguageServer is the discriminant of the structured quota shape.
const SourceLanguageServer = "LanguageServer"

// LanguageServerQuota is quota.external when source == "LanguageServer".
type LanguageServerQuota struct {
	Source        string       `json:"source"`
	Status        string       `json:"Status,omitempty"`
	Info          string       `json:"Info,omitempty"`
	User          *QuotaUser   `json:"user,omitempty"`
	PromptCredits *CreditPool  `json:"prompt_credits,omitempty"`
	FlowCredits   *CreditPool  `json:"flow_credits,omitempty"`
	Models        []QuotaModel `json:"models,omitempty"`
}

// InternalModelUsage is the backend's own per-model accounting.
type InternalModelUsage struct {
	Name               string  `json:"name"`
	Family             string  `json:"family,omitempty"`
	ThinkingPercentage float64 `json:"thinking_percentage"`
	FlowPercentage     float64 `json:"flow_percentage"`
	IsLow              bool    `json:"is_low,omitempty"`
	IsCritical         bool    `json:"is_critical,omitempty"`
}

type Quota struct {
	Models   []InternalModelUsage `json:"models,omitempty"`
	External Object               `json:"external"`
}

type QuotaTotals struct {
	ThinkingUsed  float64  `json:"thinking_used"`
	FlowUsed      float64  `json:"flow_used"`
	MaxPercentage *float64 `json:"max_percentage"`
}

// QuotaSummary is the /api/dashboard/quota payload.
type QuotaSummary struct {
	Quota
	Summary *QuotaTotals `json:"summary,omitempty"`
}

type CacheEntry struct {
	TaskID      string  `json:"task_id,omitempty"`
	AgentType   string  `json:"agent_type"`
	FileCount   int     `json:"file_count,omitempty"`
	TotalSize   int64   `json:"total_size,omitempty"`
	TotalSizeMB float64 `json:"total_size_mb,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	Preview     string  `json:"preview,omitempty"`
}

type CacheSummary struct {
	TotalEntries int          `json:"total_entries"`
	TotalSizeMB  float64      `json:"total_size_mb"`
	Entries      []CacheEntry `json:"entries"`
}

type AutoAcceptStats struct {
	TotalProcessed int `json:"total_processed"`
	AutoAccepted   int `json:"auto_accepted"`
	Rejected       int `json:"rejected"`
}

type AutoAcceptStatus struct {
	Enabled    bool             `json:"enabled"`
	Statistics *AutoAcceptStats `json:"statistics,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// RecentAction is one auto-accept decision, newest-first from the backend.
type RecentAction struct {
	ActionType string `json:"action_type"`
	Accepted   bool   `json:"accepted"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Time parses Timestamp; the backend emits naive ISO-8601 local times.
func (a RecentAction) Time() (time.Time, bool) {
	return ParseTimestamp(a.Timestamp)
}

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Agent       string `json:"agent,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

// Terminal reports whether the task will not change status anymore.
func (t Task) Terminal() bool {
	switch strings.ToLower(t.Status) {
	case TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

type TaskRequest struct {
	Description string `json:"description"`
	ProjectPath string `json:"project_path"`
	ProjectName string `json:"project_name"`
}

type TaskSubmission struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type SystemMetrics struct {
	CPUPercent       *float64 `json:"cpu_percent"`
	MemoryPercent    *float64 `json:"memory_percent"`
	GPUPercent       *float64 `json:"gpu_percent"`
	GPUMemoryPercent *float64 `json:"gpu_memory_percent"`
	DiskPercent      *float64 `json:"disk_percent,omitempty"`
}

// ActionResult is the generic {message, ...} reply of mutating endpoints.
type ActionResult struct {
	Message string `json:"message"`
	Cleared int    `json:"cleared,omitempty"`
	Cleaned int    `json:"cleaned,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DashboardPayload is the /api/dashboard payload.
type DashboardPayload struct {
	Agents      *AgentSummary     `json:"agents,omitempty"`
	Quota       *Quota            `json:"quota,omitempty"`
	Cache       *CacheSummary     `json:"cache,omitempty"`
	AutoAccept  *AutoAcceptStatus `json:"auto_accept,omitempty"`
	Tasks       []Task            `json:"tasks,omitempty"`
	ProjectName string            `json:"project_name,omitempty"`
	Error       string            `json:"error,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 and the naive ISO-8601 forms Python emits.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
