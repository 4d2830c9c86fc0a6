package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aamonitor/internal/app"
	"aamonitor/internal/backend"
	"aamonitor/internal/config"
	"aamonitor/internal/dashboard"
	"aamonitor/internal/refresh"
	"aamonitor/internal/tree"
)

type tabID int

const (
	tabDashboard tabID = iota
	tabAgents
	tabCache
	tabActions
	tabDiagnostics
	tabHelp
	tabCount
)

var tabLabels = [tabCount]string{"Dashboard", "Agents", "Cache", "Actions", "Diagnostics", "Help"}

type model struct {
	app        *app.App
	ctx        context.Context
	monitoring config.MonitoringConfig

	snapshot    *dashboard.Snapshot
	status      refresh.StatusBar
	diagnostics string

	statusLine   string
	logs         []string
	activeTab    tabID
	agentIndex   int
	expanded     map[string]bool
	polls        int // in-flight collect and refresh requests
	inflight     bool
	quitConfirm  bool
	clearConfirm bool
	taskInput    bool

	width  int
	height int

	input   textinput.Model
	pane    viewport.Model
	spinner spinner.Model

	theme uiTheme
	now   func() time.Time
}

type snapshotMsg struct {
	snap *dashboard.Snapshot
}

type refreshDoneMsg struct {
	status refresh.StatusBar
	err    error
}

type actionDoneMsg struct {
	intent      dashboard.Intent
	outcome     app.Outcome
	diagnostics string
	err         error
}

type backendDoneMsg struct {
	status string
	err    error
}

type dashboardTickMsg time.Time

type refreshTickMsg time.Time

type configReloadedMsg struct {
	cfg *config.Config
}

type configErrorMsg struct {
	err error
}

// treeChangedMsg is sent when a sidebar provider notifies its subscribers.
type treeChangedMsg struct{}

func newModel(a *app.App) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Décrivez la tâche à exécuter puis Entrée"
	input.Blur()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	pane := viewport.New(0, 0)
	pane.MouseWheelEnabled = true
	pane.MouseWheelDelta = 4

	return model{
		app:        a,
		ctx:        context.Background(),
		monitoring: a.Monitoring(),
		status:     refresh.StartingStatus(),
		statusLine: "starting...",
		logs:       []string{},
		activeTab:  tabDashboard,
		expanded:   map[string]bool{},
		input:      input,
		pane:       pane,
		spinner:    sp,
		theme:      newTheme(),
		now:        time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.collectCmd(),
		m.refreshCmd(),
		tickDashboard(m.monitoring.DashboardEvery()),
		tickRefresh(m.monitoring.RefreshEvery()),
	)
}

func tickDashboard(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = refresh.DefaultDashboardInterval
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return dashboardTickMsg(t)
	})
}

func tickRefresh(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = refresh.DefaultRefreshInterval
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func (m model) collectCmd() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		out, _ := a.Dispatch(ctx, dashboard.Message{Type: string(dashboard.IntentRefresh)})
		return snapshotMsg{snap: out.Snapshot}
	}
}

func (m model) refreshCmd() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		status, err := a.Refresher.RefreshAll(ctx)
		return refreshDoneMsg{status: status, err: err}
	}
}

func (m model) actionCmd(msg dashboard.Message) tea.Cmd {
	a, ctx := m.app, m.ctx
	width := maxInt(40, m.width-8)
	return func() tea.Msg {
		intent, _ := msg.Intent()
		out, err := a.Dispatch(ctx, msg)
		done := actionDoneMsg{intent: intent, outcome: out, err: err}
		if err == nil && out.Diagnostics != nil {
			md, ferr := app.FormatReport(*out.Diagnostics, app.FormatMarkdown)
			if ferr != nil {
				done.err = ferr
				return done
			}
			rendered, rerr := renderMarkdown(md, width)
			done.diagnostics = ternary(rerr == nil, rendered, md)
		}
		return done
	}
}

// backendCmd starts the server when it is stopped and stops it otherwise.
func (m model) backendCmd() tea.Cmd {
	proc, ctx := m.app.Backend, m.ctx
	return func() tea.Msg {
		if proc.Running() {
			if err := proc.Stop(); err != nil {
				return backendDoneMsg{err: err}
			}
			return backendDoneMsg{status: "server stopped"}
		}
		if err := proc.Start(ctx); err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				return backendDoneMsg{err: fmt.Errorf("%w (set backend.dir)", err)}
			}
			return backendDoneMsg{err: err}
		}
		return backendDoneMsg{status: "server started from " + proc.Dir()}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case snapshotMsg:
		m.polls = maxInt(0, m.polls-1)
		if msg.snap != nil {
			m.snapshot = msg.snap
			if !msg.snap.Connected {
				m.status = refresh.OfflineStatus()
			}
		}
		m.renderPanes()
	case refreshDoneMsg:
		m.polls = maxInt(0, m.polls-1)
		m.status = msg.status
		if msg.err != nil {
			m.appendLog("refresh: " + msg.err.Error())
		}
		m.renderPanes()
	case actionDoneMsg:
		m.inflight = false
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		if msg.outcome.Snapshot != nil {
			m.snapshot = msg.outcome.Snapshot
		}
		if msg.diagnostics != "" {
			m.diagnostics = msg.diagnostics
			m.activeTab = tabDiagnostics
		}
		if msg.outcome.Notice != "" {
			m.statusLine = msg.outcome.Notice
			m.appendLog(msg.outcome.Notice)
		}
		if msg.intent == dashboard.IntentToggleAutoAccept {
			m.polls++
			cmds = append(cmds, m.refreshCmd())
		}
		m.renderPanes()
	case backendDoneMsg:
		m.inflight = false
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		m.statusLine = msg.status
		m.appendLog(msg.status)
	case treeChangedMsg:
		m.renderPanes()
	case dashboardTickMsg:
		if m.monitoring.Enabled {
			m.polls++
			cmds = append(cmds, m.collectCmd())
		}
		cmds = append(cmds, tickDashboard(m.monitoring.DashboardEvery()))
	case refreshTickMsg:
		if m.monitoring.Enabled {
			m.polls++
			cmds = append(cmds, m.refreshCmd())
		}
		cmds = append(cmds, tickRefresh(m.monitoring.RefreshEvery()))
	case configReloadedMsg:
		m.app.ApplyConfig(msg.cfg)
		m.monitoring = msg.cfg.Monitoring
		m.statusLine = fmt.Sprintf("config reloaded · monitoring %s · dashboard %s · refresh %s",
			onOff(m.monitoring.Enabled), m.monitoring.DashboardEvery(), m.monitoring.RefreshEvery())
		m.appendLog(m.statusLine)
	case configErrorMsg:
		m.logError(msg.err)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.quitConfirm || m.clearConfirm {
			break
		}
		var cmd tea.Cmd
		m.pane, cmd = m.pane.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.quitConfirm {
			switch msg.String() {
			case "y", "Y", "o", "O", "enter":
				return m, tea.Quit
			case "n", "N", "esc":
				m.quitConfirm = false
				m.statusLine = "quit canceled"
			}
			return m, tea.Batch(cmds...)
		}
		if m.clearConfirm {
			switch msg.String() {
			case "o", "O", "y", "Y", "enter":
				m.clearConfirm = false
				m.inflight = true
				m.statusLine = "vidage du cache..."
				cmds = append(cmds, m.actionCmd(dashboard.Message{Type: string(dashboard.IntentClearCache), Confirm: true}))
			case "n", "N", "esc":
				m.clearConfirm = false
				m.statusLine = "vidage annulé"
			}
			return m, tea.Batch(cmds...)
		}
		if m.taskInput {
			switch msg.String() {
			case "esc":
				m.closeTaskInput()
				m.statusLine = "tâche annulée"
				return m, tea.Batch(cmds...)
			case "enter":
				desc := strings.TrimSpace(m.input.Value())
				if desc == "" || m.inflight {
					return m, tea.Batch(cmds...)
				}
				m.closeTaskInput()
				m.inflight = true
				m.statusLine = "envoi de la tâche..."
				cmds = append(cmds, m.actionCmd(dashboard.Message{Type: string(dashboard.IntentExecuteTask), Description: desc}))
				return m, tea.Batch(cmds...)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
			return m, tea.Batch(cmds...)
		}
		cmds = append(cmds, m.handleKey(msg.String())...)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(key string) []tea.Cmd {
	var cmds []tea.Cmd
	dispatch := func(intent dashboard.Intent, status string) {
		if m.inflight {
			return
		}
		m.inflight = true
		m.statusLine = status
		cmds = append(cmds, m.actionCmd(dashboard.Message{Type: string(intent)}))
	}

	switch key {
	case "q", "esc":
		m.beginQuitConfirm()
		return cmds
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		m.renderPanes()
		return cmds
	case "shift+tab":
		m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		m.renderPanes()
		return cmds
	case "1", "2", "3", "4", "5", "6":
		m.activeTab = tabID(key[0] - '1')
		m.renderPanes()
		return cmds
	case "r":
		m.polls += 2
		cmds = append(cmds, m.collectCmd(), m.refreshCmd())
		m.statusLine = "actualisation..."
		return cmds
	case "a":
		dispatch(dashboard.IntentToggleAutoAccept, "bascule auto-accept...")
		return cmds
	case "t":
		m.taskInput = true
		m.input.SetValue("")
		m.input.Focus()
		m.statusLine = "nouvelle tâche"
		return cmds
	case "c":
		m.clearConfirm = true
		m.statusLine = "Vider tout le cache ?"
		return cmds
	case "x":
		dispatch(dashboard.IntentAutoCleanCache, "nettoyage du cache...")
		return cmds
	case "d":
		dispatch(dashboard.IntentRunDiagnostics, "diagnostics en cours...")
		return cmds
	case "S":
		if !m.inflight {
			m.inflight = true
			cmds = append(cmds, m.backendCmd())
		}
		return cmds
	}

	if m.activeTab == tabAgents {
		agents := m.app.Agents.GetChildren(nil)
		switch key {
		case "up", "k":
			m.agentIndex = maxInt(0, m.agentIndex-1)
		case "down", "j":
			m.agentIndex = clampInt(m.agentIndex+1, 0, maxInt(0, len(agents)-1))
		case "enter", " ":
			if name, ok := selectedAgent(agents, m.agentIndex); ok {
				m.expanded[name] = !m.expanded[name]
			}
		case "R":
			if name, ok := selectedAgent(agents, m.agentIndex); ok && !m.inflight {
				m.inflight = true
				m.statusLine = "redémarrage de " + name + "..."
				cmds = append(cmds, m.actionCmd(dashboard.Message{Type: string(dashboard.IntentRestartAgent), Agent: name}))
			}
		}
		m.renderPanes()
		return cmds
	}

	switch key {
	case "pgup", "ctrl+u", "-":
		m.pane.LineUp(8)
	case "pgdown", "ctrl+d", "+", "=":
		m.pane.LineDown(8)
	case "up", "k":
		m.pane.LineUp(2)
	case "down", "j":
		m.pane.LineDown(2)
	case "home":
		m.pane.GotoTop()
	case "end":
		m.pane.GotoBottom()
	}
	return cmds
}

func selectedAgent(nodes []tree.Node, index int) (string, bool) {
	if index < 0 || index >= len(nodes) {
		return "", false
	}
	agent, ok := nodes[index].(tree.AgentNode)
	if !ok {
		return "", false
	}
	return agent.Agent.Name, true
}

func (m *model) closeTaskInput() {
	m.taskInput = false
	m.input.SetValue("")
	m.input.Blur()
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "Quitter aa-monitor ?"
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", m.now().Format("15:04:05"), compactSingleLine(trimmed, 220)))
	if len(m.logs) > 50 {
		m.logs = m.logs[len(m.logs)-50:]
	}
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.appendLog("error: " + err.Error())
	m.statusLine = "error: " + compactSingleLine(err.Error(), 160)
}
