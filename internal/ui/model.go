package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertwitch/kcore/internal/kernel"
	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/schema"
	"github.com/dustin/go-humanize"
)

const (
	// refreshInterval is the interval at which the stats are sampled.
	refreshInterval = 100 * time.Millisecond

	// maxLogLines is the number of log lines kept for the logs panel.
	maxLogLines = 100

	// maxListed is the number of tids or requests listed in a panel.
	maxListed = 8
)

//nolint:gochecknoglobals
var (
	// titleStyle defines the style for a panel's title.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	// borderStyle defines the style for a panel's borders.
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(0, 1)
)

// StatsMsg is a [tea.Msg] containing sampled [kernel.Stats].
type StatsMsg struct {
	t     time.Time
	stats kernel.Stats
}

// TeaModel is the principal [tea.Model] of the terminal monitor.
type TeaModel struct {
	width  int
	height int

	cancel context.CancelFunc

	uiHandler *Handler

	fullWidthWithBorders  int
	splitWidthWithBorders int

	stats kernel.Stats

	schedProgress    progress.Model
	nodesProgress    progress.Model
	workloadProgress progress.Model
	logsViewport     viewport.Model
	logs             []string

	ready bool
}

// NewTeaModel returns an initial new [TeaModel].
//
//nolint:mnd
func NewTeaModel(uiHandler *Handler, cancel context.CancelFunc) TeaModel {
	newBar := func() progress.Model {
		return progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(80),
		)
	}

	return TeaModel{
		uiHandler:        uiHandler,
		schedProgress:    newBar(),
		nodesProgress:    newBar(),
		workloadProgress: newBar(),
		logsViewport:     viewport.New(80, 20),
		logs:             make([]string, 0, maxLogLines),
		cancel:           cancel,
	}
}

// Init initializes the model within a [tea.Program].
func (m TeaModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		sampleStats(m.uiHandler.stats),
	)
}

// sampleStats produces a [tea.Cmd] returning a [StatsMsg] after the
// [refreshInterval].
func sampleStats(s statsProvider) tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return StatsMsg{
			t:     t,
			stats: s.Stats(),
		}
	})
}

func ratio(part, total int) float64 {
	if total <= 0 {
		return 0
	}

	return float64(part) / float64(total)
}

func (m *TeaModel) renderLogs() {
	logs := lipgloss.NewStyle().
		Width(m.logsViewport.Width).
		Render(strings.TrimSuffix(strings.Join(m.logs, ""), "\n"))

	m.logsViewport.SetContent(logs)
	m.logsViewport.GotoBottom()
}

// Update is the principal message handling method of the model.
//
//nolint:mnd,funlen,ireturn
func (m TeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()

			return m, tea.Quit
		case "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		m.fullWidthWithBorders = m.width - 2
		m.splitWidthWithBorders = (m.width / 3) - 2

		m.schedProgress.Width = m.splitWidthWithBorders
		m.nodesProgress.Width = m.splitWidthWithBorders
		m.workloadProgress.Width = m.splitWidthWithBorders

		// Upper panels take about half of the height.
		lowerHeight := m.height - m.height/2

		m.logsViewport.Width = m.fullWidthWithBorders
		m.logsViewport.Height = lowerHeight - 3

		if len(m.logs) > 0 {
			m.renderLogs()
		}

		if !m.ready {
			m.ready = true
			m.uiHandler.Ready.Store(true)
		}

	case StatsMsg:
		m.stats = msg.stats

		sched := m.stats.Sched
		nodes := m.stats.Nodes

		cmds = append(cmds,
			m.schedProgress.SetPercent(ratio(sched.Capacity-sched.Free, sched.Capacity)),
			m.nodesProgress.SetPercent(ratio(nodes.Slots-nodes.Free, nodes.Max)),
			m.workloadProgress.SetPercent(m.stats.Workload.ProgressPct/100),
			sampleStats(m.uiHandler.stats),
		)

	case LogMsg:
		if len(m.logs) >= maxLogLines {
			m.logs = m.logs[1:]
		}

		m.logs = append(m.logs, string(msg))
		m.renderLogs()

	case progress.FrameMsg:
		for _, bar := range []*progress.Model{&m.schedProgress, &m.nodesProgress, &m.workloadProgress} {
			updated, cmd := bar.Update(msg)
			if progressModel, ok := updated.(progress.Model); ok {
				*bar = progressModel
			}
			cmds = append(cmds, cmd)
		}
	}

	m.logsViewport, cmd = m.logsViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View is the principal rendering function of the model.
func (m TeaModel) View() string {
	if !m.ready {
		return "Loading the GUI..."
	}

	var s strings.Builder

	upperSection := lipgloss.JoinHorizontal(
		lipgloss.Top,
		borderStyle.Width(m.splitWidthWithBorders).Render(m.panel("Scheduler", m.schedProgress.View(), m.schedDetails())),
		borderStyle.Width(m.splitWidthWithBorders).Render(m.panel("Nodes & Requests", m.nodesProgress.View(), m.nodeDetails())),
		borderStyle.Width(m.splitWidthWithBorders).Render(m.panel("Workload", m.workloadProgress.View(), m.workloadDetails())),
	)

	logsSection := borderStyle.
		Width(m.fullWidthWithBorders).
		Render(
			lipgloss.JoinVertical(
				lipgloss.Left,
				titleStyle.Width(m.fullWidthWithBorders).Render("Kernel Log"),
				lipgloss.NewStyle().Width(m.fullWidthWithBorders).Render(m.logsViewport.View()),
			),
		)

	helpSection := helpStyle.
		Width(m.fullWidthWithBorders).
		Render("q: quit gui • ctrl+c: quit program")

	s.WriteString(lipgloss.JoinVertical(
		lipgloss.Left,
		upperSection,
		logsSection,
		helpSection,
	))

	return s.String()
}

func (m TeaModel) panel(title string, progressBar string, details string) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Width(m.splitWidthWithBorders).Render(title),
		"", // Empty line for spacing.
		progressBar,
		"", // Empty line for spacing.
		infoStyle.Width(m.splitWidthWithBorders).Render(details),
	)
}

func listTids(tids []schema.Tid) string {
	parts := make([]string, 0, min(len(tids), maxListed)+1)

	for i, tid := range tids {
		if i == maxListed {
			parts = append(parts, "...")

			break
		}
		parts = append(parts, fmt.Sprint(tid))
	}

	if len(parts) == 0 {
		return "-"
	}

	return strings.Join(parts, " ")
}

func (m TeaModel) schedDetails() string {
	sched := m.stats.Sched

	running := "idle"
	if sched.Running != schema.InvalidTid {
		running = fmt.Sprintf("tid %d", sched.Running)
	}

	return fmt.Sprintf(
		"Running: %s\n"+
			"Ready: %d/%d [%s]\n"+
			"Blocked: %d [%s]\n"+
			"Threads: %s\n",
		running,
		len(sched.Ready), sched.Capacity, listTids(sched.Ready),
		len(sched.Blocked), listTids(sched.Blocked),
		humanize.Comma(int64(len(m.stats.Threads))),
	)
}

func (m TeaModel) nodeDetails() string {
	nodes := m.stats.Nodes
	reqs := m.stats.Requests

	pending := make([]string, 0, maxListed)
	for i, p := range m.stats.Pending {
		if i == maxListed {
			pending = append(pending, "...")

			break
		}

		state := "wait"
		if p.State == request.StateFinished {
			state = "done"
		}
		pending = append(pending, fmt.Sprintf("%d@%d:%s", p.Tid, p.Object, state))
	}

	drivers := make([]string, 0, len(m.stats.Drivers))
	for _, d := range m.stats.Drivers {
		drivers = append(drivers, d.Name+"="+humanize.Comma(int64(d.Handled))) //nolint:gosec
	}

	return fmt.Sprintf(
		"Nodes: %s used, %s slots (max %s)\n"+
			"Requests: %d/%d in use, %d waiting\n"+
			"Pending: %s\n"+
			"Drivers: %s\n",
		humanize.Comma(int64(nodes.Slots-nodes.Free)), humanize.Comma(int64(nodes.Slots)), humanize.Comma(int64(nodes.Max)),
		reqs.InUse, reqs.Capacity, reqs.Waiting,
		strings.Join(pending, " "),
		strings.Join(drivers, " "),
	)
}

func (m TeaModel) workloadDetails() string {
	p := m.stats.Workload

	if !p.HasFinished {
		var timeLeftMin float64
		if !p.ETA.IsZero() {
			timeLeftMin = time.Until(p.ETA).Minutes()
		}

		return fmt.Sprintf(
			"Progress: %.2f%% (%d/%d)\n"+
				"Jobs: InProgress=%d, Success=%d, Failed=%d, Requeued=%d\n"+
				"Time: Started=%v, ETA=%v (%.1fmin left)\n"+
				"Speed: %.1f jobs/s\n",
			p.ProgressPct, p.ProcessedItems, p.TotalItems,
			p.InProgressItems, p.SuccessItems, p.FailedItems, p.RequeuedItems,
			p.StartTime.Format("15:04:05"), p.ETA.Format("15:04:05"), timeLeftMin,
			p.ItemsPerSec,
		)
	}

	return fmt.Sprintf(
		"Progress: %.2f%% (%d/%d)\n"+
			"Jobs: InProgress=%d, Success=%d, Failed=%d, Requeued=%d\n"+
			"Time: Started=%v, Finished=%v\n\n",
		p.ProgressPct, p.ProcessedItems, p.TotalItems,
		p.InProgressItems, p.SuccessItems, p.FailedItems, p.RequeuedItems,
		p.StartTime.Format("15:04:05"), p.FinishTime.Format("15:04:05"),
	)
}
