package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"aamonitor/internal/api"
)

const barCells = 10

// Theme holds the styles used by Paint.
type Theme struct {
	Panel      lipgloss.Style
	PanelTitle lipgloss.Style
	Muted      lipgloss.Style
	Text       lipgloss.Style
	Accent     lipgloss.Style
	Badges     map[BadgeState]lipgloss.Style
	Tiers      map[Tier]lipgloss.Style
	Agents     map[string]lipgloss.Style
	Pro        lipgloss.Style
	Error      lipgloss.Style
}

func DefaultTheme() Theme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	amber := lipgloss.Color("#ffd166")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return Theme{
		Panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		PanelTitle: lipgloss.NewStyle().Foreground(mint).Bold(true),
		Muted:      lipgloss.NewStyle().Foreground(muted),
		Text:       lipgloss.NewStyle().Foreground(text),
		Accent:     lipgloss.NewStyle().Foreground(blue).Bold(true),
		Badges: map[BadgeState]lipgloss.Style{
			BadgeConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("#22062f")).Background(amber).Bold(true).Padding(0, 1),
			BadgeConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("#22062f")).Background(mint).Bold(true).Padding(0, 1),
			BadgeDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("#22062f")).Background(pink).Bold(true).Padding(0, 1),
		},
		Tiers: map[Tier]lipgloss.Style{
			TierGood:     lipgloss.NewStyle().Foreground(mint),
			TierWarning:  lipgloss.NewStyle().Foreground(amber),
			TierCritical: lipgloss.NewStyle().Foreground(pink),
		},
		Agents: map[string]lipgloss.Style{
			"idle":    lipgloss.NewStyle().Foreground(mint),
			"working": lipgloss.NewStyle().Foreground(blue),
			"error":   lipgloss.NewStyle().Foreground(pink),
		},
		Pro:   lipgloss.NewStyle().Foreground(lipgloss.Color("#22062f")).Background(pink).Bold(true).Padding(0, 1),
		Error: lipgloss.NewStyle().Foreground(pink).Bold(true),
	}
}

// Paint draws v with the default theme.
func Paint(v View, width int) string {
	return DefaultTheme().Paint(v, width)
}

func (t Theme) Paint(v View, width int) string {
	if width < 30 {
		width = 30
	}
	sections := []string{
		t.panel("🚀 Auto-Antigravity", t.header(v), width),
		t.panel("📊 Vue d'ensemble", t.overview(v.Overview), width),
		t.panel("🤖 Agents", t.agents(v.Agents), width),
		t.panel("⛽ Quotas", t.quota(v.Quota), width),
		t.panel("🖥️ Système", t.metrics(v.Metrics), width),
	}
	if v.Tasks.Visible {
		title := "📋 Tâches"
		if v.Tasks.ProjectName != "" {
			title += " (" + v.Tasks.ProjectName + ")"
		}
		sections = append(sections, t.panel(title, t.tasks(v.Tasks), width))
	}
	sections = append(sections,
		t.panel("✅ Auto-Accept", t.autoAccept(v.AutoAccept), width),
		t.Muted.Render("Mise à jour: "+v.UpdatedAt),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (t Theme) panel(title, body string, width int) string {
	return t.Panel.Width(width - 2).Render(t.PanelTitle.Render(title) + "\n" + body)
}

func (t Theme) header(v View) string {
	line := t.Badges[v.Badge.State].Render(v.Badge.Label)
	if v.LastError != "" {
		line += "  " + t.Error.Render(v.LastError)
	}
	return line
}

func (t Theme) overview(o Overview) string {
	return fmt.Sprintf("%s %s   %s %s (%.1f MB)   %s %s",
		t.Muted.Render("Agents"), t.Accent.Render(fmt.Sprint(o.Agents)),
		t.Muted.Render("Cache"), t.Accent.Render(fmt.Sprint(o.CacheEntries)), o.CacheSizeMB,
		t.Muted.Render("Tâches"), t.Accent.Render(fmt.Sprint(o.Tasks)),
	)
}

func (t Theme) agents(rows []AgentRow) string {
	if len(rows) == 0 {
		return t.Muted.Render("Aucun agent")
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		dot := t.Agents[r.Class].Render("●")
		lines = append(lines, fmt.Sprintf("%s %s  %s", dot, t.Text.Render(r.Name), t.Muted.Render(r.Status)))
	}
	return strings.Join(lines, "\n")
}

func (t Theme) quota(q QuotaView) string {
	var lines []string
	switch q.Mode {
	case QuotaGauges:
		for _, g := range q.Gauges {
			lines = append(lines, t.gauge(g))
		}
	case QuotaBanner:
		style := t.Tiers[TierWarning]
		if q.Banner.Online {
			style = t.Tiers[TierGood]
		}
		lines = append(lines, style.Bold(true).Render(q.Banner.Status))
		if q.Banner.Info != "" {
			lines = append(lines, t.Muted.Render(q.Banner.Info))
		}
		if q.Banner.Detail != "" {
			lines = append(lines, t.Error.Render(q.Banner.Detail))
		}
	case QuotaList:
		for _, kv := range q.Items {
			lines = append(lines, t.Muted.Render(kv.Key)+"  "+t.Text.Render(kv.Value))
		}
	default:
		lines = append(lines, t.Muted.Render(q.Placeholder))
	}
	if q.User != nil {
		tier := t.Accent.Render("👤 " + q.User.Tier)
		if q.User.ShowPro {
			tier += " " + t.Pro.Render("PRO")
		}
		lines = append(lines, tier+"  "+t.Muted.Render(q.User.Email))
	}
	return strings.Join(lines, "\n")
}

func (t Theme) gauge(g Gauge) string {
	return fmt.Sprintf("%-12s %s %3d%%  %s",
		g.Label, t.Tiers[g.Tier].Render(Bar(g.Percent)), g.Display(), t.Muted.Render(g.SubLabel))
}

func (t Theme) metrics(circles []MetricCircle) string {
	parts := make([]string, 0, len(circles))
	for _, c := range circles {
		value := t.Muted.Render(c.Value)
		if c.Available {
			value = t.Tiers[TierFor(100-c.Percent)].Render(c.Value)
		}
		parts = append(parts, t.Muted.Render(c.Label)+" "+value)
	}
	return strings.Join(parts, "   ")
}

func (t Theme) tasks(p TaskPanel) string {
	lines := make([]string, 0, len(p.Rows))
	for _, r := range p.Rows {
		meta := r.Status
		if r.Agent != "" {
			meta = r.Agent + " · " + r.Status
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s", r.Icon, t.Text.Render(r.Description), t.Muted.Render(meta)))
	}
	return strings.Join(lines, "\n")
}

func (t Theme) autoAccept(p AutoAcceptPanel) string {
	state := t.Muted.Render("○ désactivé")
	if p.Enabled {
		state = t.Tiers[TierGood].Render("● activé")
	}
	return fmt.Sprintf("%s   %s %d   %s %d   %s %d", state,
		t.Muted.Render("Traités"), p.Processed,
		t.Muted.Render("Acceptés"), p.Accepted,
		t.Muted.Render("Rejetés"), p.Rejected,
	)
}

// Bar draws a percentage as a fixed-width block bar.
func Bar(percent float64) string {
	filled := int(math.Round(api.ClampPercent(percent) / 100 * barCells))
	return strings.Repeat("█", filled) + strings.Repeat("░", barCells-filled)
}
