// Package tui implements the live watch board for work and QA timers.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"

	"github.com/hylla/worktally/internal/app"
	"github.com/hylla/worktally/internal/domain"
)

// Service is the slice of app.Service the board drives.
type Service interface {
	ListTrackables(context.Context, app.TrackableFilter) ([]domain.Trackable, error)
	StartWork(context.Context, app.TransitionInput) (domain.Trackable, error)
	PauseWork(context.Context, app.TransitionInput) (domain.Trackable, error)
	ResumeWork(context.Context, app.TransitionInput) (domain.Trackable, error)
	FinishWork(context.Context, app.TransitionInput) (domain.Trackable, error)
	StartTesting(context.Context, app.TransitionInput) (domain.Trackable, error)
	PauseTesting(context.Context, app.TransitionInput) (domain.Trackable, error)
	ResumeTesting(context.Context, app.TransitionInput) (domain.Trackable, error)
	Now() time.Time
}

// transitionFunc is one Service transition method value.
type transitionFunc func(context.Context, app.TransitionInput) (domain.Trackable, error)

// Model is the bubbletea model for the watch board.
type Model struct {
	svc      Service
	keys     keyMap
	help     help.Model
	markdown *markdownRenderer

	actorID  string
	filter   app.TrackableFilter
	refresh  time.Duration
	copyText func(string) error

	items    []domain.Trackable
	selected int
	focusID  string
	now      time.Time
	showInfo bool
	status   string
	err      error

	ready  bool
	width  int
	height int
}

// loadedMsg carries one board reload.
type loadedMsg struct {
	items []domain.Trackable
	now   time.Time
	err   error
}

// actionMsg carries the outcome of one transition.
type actionMsg struct {
	status  string
	focusID string
	err     error
}

// tickMsg redraws live totals.
type tickMsg time.Time

// NewModel constructs a board over svc.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:      svc,
		keys:     newKeyMap(),
		help:     h,
		markdown: &markdownRenderer{},
		refresh:  DefaultRefreshInterval,
		copyText: clipboard.WriteAll,
		status:   "loading...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init loads the board and starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	if m.refresh <= 0 {
		return m.loadData
	}
	return tea.Batch(m.loadData, m.tick())
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.items = msg.items
		m.now = msg.now
		m.selected = clamp(m.selected, 0, len(m.items)-1)
		if m.focusID != "" {
			for idx, t := range m.items {
				if t.ID == m.focusID {
					m.selected = idx
					break
				}
			}
			m.focusID = ""
		}
		if m.status == "loading..." || m.status == "reloading..." {
			m.status = "ready"
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = describeError(msg.err)
			return m, nil
		}
		m.status = msg.status
		m.focusID = msg.focusID
		return m, m.loadData

	case tickMsg:
		if m.svc != nil {
			m.now = m.svc.Now()
		}
		if m.refresh <= 0 {
			return m, nil
		}
		return m, m.tick()

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	default:
		return m, nil
	}
}

// handleKey maps one key press to a board action.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	}
	if m.err != nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.moveDown):
		m.selected = clamp(m.selected+1, 0, len(m.items)-1)
	case key.Matches(msg, m.keys.moveUp):
		m.selected = clamp(m.selected-1, 0, len(m.items)-1)
	case key.Matches(msg, m.keys.toggleInfo):
		m.showInfo = !m.showInfo
	case key.Matches(msg, m.keys.copyID):
		t, ok := m.selectedTrackable()
		if !ok {
			return m, nil
		}
		if err := m.copyText(t.ID); err != nil {
			m.status = "copy failed: " + err.Error()
		} else {
			m.status = "copied " + t.ID
		}
	case key.Matches(msg, m.keys.startWork):
		t, ok := m.selectedTrackable()
		if !ok {
			return m, nil
		}
		if t.WorkState == domain.WorkStatePaused {
			return m, m.transitionCmd("resumed work on", m.svc.ResumeWork)
		}
		return m, m.transitionCmd("started work on", m.svc.StartWork)
	case key.Matches(msg, m.keys.pauseWork):
		return m, m.transitionCmd("paused work on", m.svc.PauseWork)
	case key.Matches(msg, m.keys.finishWork):
		return m, m.transitionCmd("finished work on", m.svc.FinishWork)
	case key.Matches(msg, m.keys.startTesting):
		t, ok := m.selectedTrackable()
		if !ok {
			return m, nil
		}
		if t.QAStatus == domain.QAStatusTestingPaused {
			return m, m.transitionCmd("resumed testing", m.svc.ResumeTesting)
		}
		return m, m.transitionCmd("started testing", m.svc.StartTesting)
	case key.Matches(msg, m.keys.pauseTesting):
		return m, m.transitionCmd("paused testing", m.svc.PauseTesting)
	}
	return m, nil
}

// transitionCmd runs fn against the selected trackable.
func (m Model) transitionCmd(label string, fn transitionFunc) tea.Cmd {
	t, ok := m.selectedTrackable()
	if !ok {
		return nil
	}
	in := app.TransitionInput{
		TrackableID: t.ID,
		ActorID:     m.actorID,
		ActorType:   domain.ActorTypeUser,
	}
	return func() tea.Msg {
		updated, err := fn(context.Background(), in)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{
			status:  fmt.Sprintf("%s %s", label, updated.ID),
			focusID: updated.ID,
		}
	}
}

// loadData reloads every trackable matching the board filter.
func (m Model) loadData() tea.Msg {
	items, err := m.svc.ListTrackables(context.Background(), m.filter)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{items: items, now: m.svc.Now()}
}

// tick schedules the next redraw.
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// selectedTrackable returns the highlighted row.
func (m Model) selectedTrackable() (domain.Trackable, bool) {
	if len(m.items) == 0 {
		return domain.Trackable{}, false
	}
	return m.items[clamp(m.selected, 0, len(m.items)-1)], true
}

// View renders the board in the alternate screen.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render builds the board text for the current state.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)
	headStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	runningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pausedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	rowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	header := titleStyle.Render("worktally") + statusStyle.Render(fmt.Sprintf("  %d items", len(m.items)))
	if m.actorID != "" {
		header += statusStyle.Render("  as " + m.actorID)
	}

	titleWidth := max(12, m.width-72)
	sections := []string{header, ""}
	if len(m.items) == 0 {
		sections = append(sections, "No tasks or bugs yet.", "Create one with `worktally create --title ...`.")
	} else {
		sections = append(sections, headStyle.Render(fmt.Sprintf("  %-4s %-10s %-*s %-10s %9s  %-15s %9s",
			"kind", "id", titleWidth, "title", "work", "", "qa", "")))
		for idx, t := range m.items {
			work := t.WorkReading(m.now)
			qa := t.QAReading(m.now)
			qaState := string(t.QAStatus)
			if qaState == "" {
				qaState = "-"
			}
			line := fmt.Sprintf("%-4s %-10s %-*s %-10s %9s  %-15s %9s",
				t.Kind,
				truncate(t.ID, 10),
				titleWidth, truncate(t.Title, titleWidth),
				t.WorkState,
				formatSeconds(work.DisplayedSeconds),
				qaState,
				formatSeconds(qa.DisplayedSeconds),
			)
			style := rowStyle
			switch {
			case work.Running || qa.Running:
				style = runningStyle
			case t.WorkState == domain.WorkStatePaused || t.QAStatus == domain.QAStatusTestingPaused:
				style = pausedStyle
			}
			cursor := "  "
			if idx == m.selected {
				cursor = "> "
				style = selectedStyle
			}
			sections = append(sections, cursor+style.Render(line))
		}
	}

	if m.showInfo {
		if t, ok := m.selectedTrackable(); ok {
			detail := m.markdown.render(trackableMarkdown(t, m.now), max(24, m.width-4))
			sections = append(sections, "", lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(accent).
				Padding(0, 1).
				Render(detail))
		}
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, "", statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}

	return content + "\n" + helpLine
}

// describeError renders a transition failure for the status line.
func describeError(err error) string {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return fmt.Sprintf("conflict: %s is already testing %s %s (%s)",
			conflict.ReviewerID, conflict.BlockingKind, conflict.BlockingID, conflict.BlockingTitle)
	}
	if errors.Is(err, domain.ErrInvalidState) {
		return "not allowed: " + err.Error()
	}
	return "error: " + err.Error()
}

// formatSeconds renders seconds as H:MM:SS.
func formatSeconds(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// clamp bounds v to [minV, maxV].
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines pads or trims content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
