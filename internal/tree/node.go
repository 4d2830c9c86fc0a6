// Package tree shapes flat API lists into the sidebar hierarchies: agents,
// cache groups and auto-accept actions.
package tree

import (
	"fmt"
	"strconv"
	"strings"

	"aamonitor/internal/api"
)

type Kind string

const (
	KindAgent        Kind = "agent"
	KindDetail       Kind = "detail"
	KindCacheSummary Kind = "cacheSummary"
	KindCacheGroup   Kind = "cacheGroup"
	KindStat         Kind = "stat"
	KindAction       Kind = "action"
)

// Item is the toolkit-neutral display form of a node.
type Item struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Tooltip     string `json:"tooltip,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	Collapsible bool   `json:"collapsible,omitempty"`
	Context     string `json:"context,omitempty"`
}

// Node is one entry of a hierarchy. The concrete types below are the only
// implementations.
type Node interface {
	Kind() Kind
	Render() Item
}

type AgentNode struct {
	Agent api.Agent
}

func (AgentNode) Kind() Kind { return KindAgent }

func (n AgentNode) Render() Item {
	icon, color := agentIcon(n.Agent.Status)
	return Item{
		Label:       n.Agent.Name,
		Description: n.Agent.Status,
		Tooltip: fmt.Sprintf("**%s** (%s)\n\n- Statut: %s\n- Tâches: %d complétées, %d échouées\n- Taux de succès: %s%%",
			n.Agent.Name, n.Agent.Type, n.Agent.Status, n.Agent.TasksCompleted, n.Agent.TasksFailed, formatRate(n.Agent.SuccessRate)),
		Icon:        icon,
		Color:       color,
		Collapsible: true,
		Context:     "agent",
	}
}

func agentIcon(status string) (string, string) {
	switch strings.ToLower(status) {
	case "working":
		return "sync~spin", "blue"
	case "error":
		return "error", "red"
	default:
		return "check", "green"
	}
}

// details returns the fixed leaves shown under an expanded agent.
func (n AgentNode) details() []Node {
	return []Node{
		DetailNode{Label: "Tâches complétées", Value: fmt.Sprint(n.Agent.TasksCompleted), Icon: "primitive-dot"},
		DetailNode{Label: "Tâches échouées", Value: fmt.Sprint(n.Agent.TasksFailed), Icon: "warning", Color: "orange"},
		DetailNode{Label: "Taux de succès", Value: formatRate(n.Agent.SuccessRate) + "%", Icon: "graph"},
	}
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(api.ClampPercent(rate), 'f', -1, 64)
}

type DetailNode struct {
	Label string
	Value string
	Icon  string
	Color string
}

func (DetailNode) Kind() Kind { return KindDetail }

func (n DetailNode) Render() Item {
	return Item{Label: n.Label + ": " + n.Value, Icon: n.Icon, Color: n.Color, Context: "detail"}
}

type CacheSummaryNode struct {
	TotalEntries int
	TotalSizeMB  float64
}

func (CacheSummaryNode) Kind() Kind { return KindCacheSummary }

func (n CacheSummaryNode) Render() Item {
	return Item{
		Label:       fmt.Sprintf("Total: %d entrées", n.TotalEntries),
		Description: fmt.Sprintf("%.2f MB", n.TotalSizeMB),
		Icon:        "database",
		Context:     "cacheSummary",
	}
}

type CacheGroupNode struct {
	AgentType string
	Count     int
}

func (CacheGroupNode) Kind() Kind { return KindCacheGroup }

func (n CacheGroupNode) Render() Item {
	return Item{
		Label:       n.AgentType,
		Description: fmt.Sprintf("%d entrées", n.Count),
		Icon:        "folder",
		Context:     "cacheGroup",
	}
}

type StatNode struct {
	Label string
	Value int
	Icon  string
}

func (StatNode) Kind() Kind { return KindStat }

func (n StatNode) Render() Item {
	return Item{
		Label:   fmt.Sprintf("%s: %d", n.Label, n.Value),
		Icon:    n.Icon,
		Context: "stat",
	}
}

type ActionNode struct {
	Action api.RecentAction
}

func (ActionNode) Kind() Kind { return KindAction }

func (n ActionNode) Render() Item {
	label := n.Action.ActionType
	if strings.TrimSpace(label) == "" {
		label = "unknown"
	}
	item := Item{Label: label, Context: "action"}
	if n.Action.Accepted {
		item.Description, item.Icon, item.Color = "Accepté", "check", "green"
	} else {
		item.Description, item.Icon, item.Color = "Rejeté", "x", "red"
	}
	if ts, ok := n.Action.Time(); ok {
		item.Tooltip = fmt.Sprintf("%s\nDate: %s", label, ts.Format("02/01/2006 15:04:05"))
	} else if n.Action.Timestamp != "" {
		item.Tooltip = fmt.Sprintf("%s\nDate: %s", label, n.Action.Timestamp)
	}
	return item
}
