package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"aamonitor/internal/dashboard"
	"aamonitor/internal/refresh"
	"aamonitor/internal/tree"
)

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	selected    lipgloss.Style
	modal       lipgloss.Style
	modalPick   lipgloss.Style
	levels      map[refresh.Level]lipgloss.Style
	itemColors  map[string]lipgloss.Style
	dashboard   dashboard.Theme
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	amber := lipgloss.Color("#ffd166")
	bg := lipgloss.Color("#120924")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(pink).
			Foreground(lipgloss.Color("#22062f")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#2a184a")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText: lipgloss.NewStyle().Foreground(muted),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22062f")).
			Background(pink).
			Bold(true),
		modal: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(blue).
			Padding(1, 2),
		modalPick: lipgloss.NewStyle().Foreground(pink).Bold(true),
		levels: map[refresh.Level]lipgloss.Style{
			refresh.LevelNormal:  lipgloss.NewStyle().Foreground(text),
			refresh.LevelInfo:    lipgloss.NewStyle().Foreground(blue),
			refresh.LevelWarning: lipgloss.NewStyle().Foreground(amber).Bold(true),
			refresh.LevelError:   lipgloss.NewStyle().Foreground(pink).Bold(true),
		},
		itemColors: map[string]lipgloss.Style{
			"green":  lipgloss.NewStyle().Foreground(mint),
			"red":    lipgloss.NewStyle().Foreground(pink),
			"blue":   lipgloss.NewStyle().Foreground(blue),
			"orange": lipgloss.NewStyle().Foreground(amber),
		},
		dashboard: dashboard.DefaultTheme(),
	}
}

func (t uiTheme) itemStyle(item tree.Item) lipgloss.Style {
	if s, ok := t.itemColors[item.Color]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

func (m model) View() string {
	header := m.renderHeader()
	content := m.renderContent()
	input := m.renderInput()
	footer := m.renderFooter()
	out := lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer)
	switch {
	case m.quitConfirm:
		out = m.renderModal("QUITTER ?", "Voulez-vous vraiment quitter aa-monitor ?",
			"Le serveur lancé par aa-monitor sera arrêté.", "[O / Entrée] Quitter", "[N / Esc] Retour")
	case m.clearConfirm:
		out = m.renderModal("VIDER LE CACHE ?", "Êtes-vous sûr de vouloir vider tout le cache ?",
			"Cette action est irréversible.", "[O / Entrée] Oui", "[N / Esc] Non")
	}
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	segments := make([]string, 0, tabCount+2)
	for id := tabID(0); id < tabCount; id++ {
		style := m.theme.tabInactive
		if id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(fmt.Sprintf("%d %s", id+1, tabLabels[id])))
	}
	view := dashboard.Render(m.snapshot, m.now())
	badge := m.theme.dashboard.Badges[view.Badge.State].Render(view.Badge.Label)
	segments = append(segments, " ", badge)
	if m.polls > 0 {
		segments = append(segments, " ", m.spinner.View())
	}
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m *model) contentSize() (width, height int) {
	return maxInt(40, m.width-4), maxInt(8, m.height-12)
}

func (m *model) renderContent() string {
	width, height := m.contentSize()
	panel := m.theme.panel.Width(width).Height(height)
	return panel.Render(m.theme.panelTitle.Render(m.contentTitle()) + "\n" + m.pane.View())
}

func (m *model) contentTitle() string {
	switch m.activeTab {
	case tabDashboard:
		return "Tableau de bord"
	case tabAgents:
		return "🤖 Agents"
	case tabCache:
		return "🗄 Cache"
	case tabActions:
		return "✅ Auto-Accept"
	case tabDiagnostics:
		return "🩺 Diagnostics"
	default:
		return "Aide"
	}
}

func (m *model) renderInput() string {
	width, _ := m.contentSize()
	if !m.taskInput {
		line := m.theme.helpText.Render("t nouvelle tâche · r actualiser · a auto-accept · c vider cache · x nettoyer · d diagnostics")
		if m.inflight {
			line = m.spinner.View() + " " + m.statusLine
		}
		return m.theme.inputPanel.Width(width).Render(line)
	}
	inputView := m.input.View()
	if m.inflight {
		inputView = m.spinner.View() + " envoi... " + inputView
	}
	return m.theme.inputPanel.Width(width).Render(inputView)
}

func (m *model) renderFooter() string {
	width, _ := m.contentSize()
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") {
		statusStyle = m.theme.errorStatus
	}
	bar := m.theme.levels[m.status.Level].Render(m.status.Text)
	line := bar + "  " + statusStyle.Render(compactSingleLine(m.statusLine, 160))
	hints := m.theme.helpText.Render("Keys: Tab/1-6 vues · ↑/↓ défiler · Entrée détails (Agents) · R redémarrer agent · S serveur · q quitter")
	return m.theme.footer.Width(width).Render(line + "\n" + hints)
}

func (m *model) renderModal(title, question, note, yes, no string) string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.56), 32, 78)
	if modalWidth > canvasWidth-2 {
		modalWidth = canvasWidth - 2
	}
	body := strings.Join([]string{
		m.theme.errorStatus.Render(title),
		m.theme.helpText.Render(question),
		"",
		m.theme.helpText.Render(note),
		"",
		m.theme.modalPick.Render(yes) + "    " + m.theme.helpText.Render(no),
	}, "\n")
	panel := m.theme.modal.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#120924")),
	)
}

// renderPanes refreshes the viewport content for the active tab, keeping the
// scroll position unless the view was already at the bottom.
func (m *model) renderPanes() {
	prevOffset := m.pane.YOffset
	prevAtBottom := m.pane.AtBottom() && m.pane.YOffset > 0

	width, height := m.contentSize()
	m.pane.Width = maxInt(20, width-4)
	m.pane.Height = maxInt(5, height-3)

	m.pane.SetContent(m.paneContent())
	if prevAtBottom {
		m.pane.GotoBottom()
	} else {
		m.pane.SetYOffset(prevOffset)
	}
}

func (m *model) paneContent() string {
	switch m.activeTab {
	case tabDashboard:
		view := dashboard.Render(m.snapshot, m.now())
		return m.theme.dashboard.Paint(view, maxInt(30, m.pane.Width-2))
	case tabAgents:
		return m.renderAgents()
	case tabCache:
		return m.renderProvider(m.app.Cache, "Aucune donnée de cache")
	case tabActions:
		return m.renderProvider(m.app.Actions, "")
	case tabDiagnostics:
		if m.diagnostics == "" {
			return m.theme.helpText.Render("Appuyez sur d pour lancer les diagnostics.")
		}
		return m.diagnostics
	default:
		return m.renderHelp()
	}
}

func (m *model) renderAgents() string {
	nodes := m.app.Agents.GetChildren(nil)
	if len(nodes) == 0 {
		return m.theme.helpText.Render("Aucun agent")
	}
	m.agentIndex = clampInt(m.agentIndex, 0, len(nodes)-1)
	var lines []string
	for idx, node := range nodes {
		item := node.Render()
		line := formatItem(item, 0)
		if idx == m.agentIndex {
			line = m.theme.selected.Render(line)
		} else {
			line = m.theme.itemStyle(item).Render(line)
		}
		lines = append(lines, line)
		if name, ok := selectedAgent(nodes, idx); ok && m.expanded[name] {
			lines = append(lines, treeLines(m.app.Agents, node, 1, nil, m.theme.itemStyle)...)
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderProvider(p tree.Provider, empty string) string {
	lines := treeLines(p, nil, 0, nil, m.theme.itemStyle)
	if len(lines) == 0 && empty != "" {
		return m.theme.helpText.Render(empty)
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderHelp() string {
	lines := []string{
		"Touches",
		"- Tab / Shift+Tab ou 1-6: changer de vue",
		"- r: actualiser le tableau de bord et les vues",
		"- a: activer/désactiver l'auto-accept",
		"- t: saisir une tâche (Entrée envoie, Esc annule)",
		"- c: vider le cache (confirmation Oui/Non)",
		"- x: nettoyage automatique du cache",
		"- d: lancer les diagnostics",
		"- S: démarrer/arrêter le serveur local",
		"- Agents: ↑/↓ sélection, Entrée détails, R redémarrer",
		"- PgUp/PgDn, ↑/↓, +/-: défiler",
		"- q / Esc: quitter (confirmation), Ctrl+C: quitter",
		"",
		"Surveillance",
		fmt.Sprintf("- active: %s", onOff(m.monitoring.Enabled)),
		fmt.Sprintf("- tableau de bord toutes les %s, vues toutes les %s", m.monitoring.DashboardEvery(), m.monitoring.RefreshEvery()),
		fmt.Sprintf("- serveur: %s", m.app.Client.BaseURL()),
		"",
		"Journal",
	}
	if len(m.logs) == 0 {
		lines = append(lines, "- (vide)")
	}
	for _, l := range m.logs {
		lines = append(lines, "- "+l)
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}

func (m *model) resize() {
	width, _ := m.contentSize()
	m.input.Width = maxInt(20, width-6)
}
