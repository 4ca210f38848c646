// Package ui renders pipeline progress in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"asmcorpus/internal/pipeline"
)

const (
	maxActive   = 6
	maxFailures = 5
)

type progressModel struct {
	title    string
	events   <-chan pipeline.Event
	spinner  spinner.Model
	prog     progress.Model
	stages   []stageItem
	index    map[pipeline.Stage]int
	active   []string
	failures []string
	width    int
	done     bool
	// interrupt is called on ctrl+c; events keep flowing until the
	// pipeline stops.
	interrupt   func()
	interrupted bool
}

// Option configures the progress model.
type Option func(*progressModel)

// WithInterrupt registers fn to run when the user presses ctrl+c.
func WithInterrupt(fn func()) Option {
	return func(m *progressModel) { m.interrupt = fn }
}

type stageItem struct {
	stage  pipeline.Stage
	status string
	total  int
	done   int
	failed int
	cached int
}

func (s stageItem) finished() int { return s.done + s.failed + s.cached }

type eventMsg pipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders pipeline progress
// for the given stages until events is closed.
func NewProgressModel(title string, stages []pipeline.Stage, events <-chan pipeline.Event, opts ...Option) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]stageItem, 0, len(stages))
	index := make(map[pipeline.Stage]int, len(stages))
	for i, st := range stages {
		items = append(items, stageItem{stage: st, status: "pending"})
		index[st] = i
	}
	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		stages:  items,
		index:   index,
		width:   80,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(pipeline.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.interrupt != nil {
				m.interrupt()
			}
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.stages) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	switch {
	case m.done:
		header = fmt.Sprintf("done: %s", header)
	case m.interrupted:
		header = fmt.Sprintf("%s %s (stopping)", m.spinner.View(), header)
	default:
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	for _, item := range m.stages {
		status := styleStatus(item.status).Render(fmt.Sprintf("%10s", item.status))
		fmt.Fprintf(&b, "  %s %-12s %s\n", status, item.stage, counts(item))
	}

	nameWidth := max(20, m.width-6)
	if len(m.active) > 0 && !m.done {
		b.WriteString("\n")
		for _, file := range m.active {
			b.WriteString("    " + truncate(file, nameWidth) + "\n")
		}
	}
	if len(m.failures) > 0 {
		b.WriteString("\n")
		failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
		for _, line := range m.failures {
			b.WriteString("  " + failStyle.Render(truncate(line, nameWidth)) + "\n")
		}
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev pipeline.Event) tea.Cmd {
	idx, ok := m.index[ev.Stage]
	if !ok {
		return nil
	}
	item := &m.stages[idx]
	if ev.File == "" {
		switch ev.Status {
		case pipeline.StatusQueued:
			item.total = ev.Total
		case pipeline.StatusWorking:
			item.status = stageLabel(ev.Stage)
		case pipeline.StatusDone:
			item.status = "done"
			m.active = m.active[:0]
		case pipeline.StatusError:
			item.status = "error"
		}
		return m.prog.SetPercent(m.percent())
	}

	switch ev.Status {
	case pipeline.StatusWorking:
		m.active = append(m.active, ev.File)
		if len(m.active) > maxActive {
			m.active = m.active[len(m.active)-maxActive:]
		}
		return nil
	case pipeline.StatusDone:
		item.done++
	case pipeline.StatusCached:
		item.cached++
	case pipeline.StatusError:
		item.failed++
		line := fmt.Sprintf("%s %s", ev.Stage, ev.File)
		if ev.Err != nil {
			line += ": " + firstLine(ev.Err.Error())
		}
		m.failures = append(m.failures, line)
		if len(m.failures) > maxFailures {
			m.failures = m.failures[len(m.failures)-maxFailures:]
		}
	default:
		return nil
	}
	m.removeActive(ev.File)
	return m.prog.SetPercent(m.percent())
}

func (m *progressModel) removeActive(file string) {
	for i, f := range m.active {
		if f == file {
			m.active = append(m.active[:i], m.active[i+1:]...)
			return
		}
	}
}

// percent weights every stage equally; a stage with tasks advances by the
// share of finished tasks.
func (m *progressModel) percent() float64 {
	if len(m.stages) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.stages {
		switch {
		case item.status == "done" || item.status == "error":
			total += 1.0
		case item.total > 0:
			total += float64(min(item.finished(), item.total)) / float64(item.total)
		}
	}
	return total / float64(len(m.stages))
}

func counts(item stageItem) string {
	if item.total == 0 && item.finished() == 0 {
		return ""
	}
	parts := []string{fmt.Sprintf("%d/%d", item.finished(), max(item.total, item.finished()))}
	if item.failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", item.failed))
	}
	if item.cached > 0 {
		parts = append(parts, fmt.Sprintf("%d cached", item.cached))
	}
	return strings.Join(parts, "  ")
}

func stageLabel(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageCollect:
		return "collecting"
	case pipeline.StageReplay:
		return "replaying"
	case pipeline.StageCompile:
		return "compiling"
	case pipeline.StageDisassemble:
		return "disasm"
	case pipeline.StageWrite:
		return "writing"
	default:
		return "working"
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "pending":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
