// Package tui provides the Bubble Tea timer interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/tuisplit/internal/engine"
	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/splits"
)

// Controller is the engine surface driven by the UI.
type Controller interface {
	Primary(ctx context.Context) error
	TogglePause(ctx context.Context) error
	Reset(ctx context.Context) error
	SelectGroup(ctx context.Context, groupID int64) error
	Subscribe() (<-chan engine.Snapshot, func())
}

// actionQueueSize bounds key presses waiting for the engine.
const actionQueueSize = 32

var errActionQueueFull = errors.New("too many pending actions")

type snapshotMsg engine.Snapshot

type actionDoneMsg struct {
	err error
}

// Model implements the Bubble Tea timer UI.
type Model struct {
	ctrl    Controller
	keys    KeyMap
	help    help.Model
	groups  []model.Group
	updates <-chan engine.Snapshot
	cancel  func()

	// Actions run one at a time in key press order.
	pending    chan func(context.Context) error
	results    chan error
	stopWorker context.CancelFunc

	snap    engine.Snapshot
	lastErr string

	width  int
	height int
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	stateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	clockStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0")).Padding(1, 0)
	pausedStyle  = clockStyle.Copy().Foreground(lipgloss.Color("#C89A3A"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// NewModel constructs a timer TUI model. groups is the cycle order for the next-group key.
func NewModel(ctrl Controller, keys KeyMap, groups []model.Group) *Model {
	updates, cancel := ctrl.Subscribe()
	ctx, stop := context.WithCancel(context.Background())
	m := &Model{
		ctrl:       ctrl,
		keys:       keys,
		help:       help.New(),
		groups:     groups,
		updates:    updates,
		cancel:     cancel,
		pending:    make(chan func(context.Context) error, actionQueueSize),
		results:    make(chan error, actionQueueSize),
		stopWorker: stop,
	}
	go m.runActions(ctx)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForSnapshot(), m.waitForResult())
}

// Close stops the action worker and snapshot delivery.
func (m *Model) Close() {
	if m.stopWorker != nil {
		m.stopWorker()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Model) waitForSnapshot() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) waitForResult() tea.Cmd {
	results := m.results
	return func() tea.Msg {
		return actionDoneMsg{err: <-results}
	}
}

func (m *Model) runActions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.pending:
			err := fn(ctx)
			select {
			case m.results <- err:
			case <-ctx.Done():
				return
			}
		}
	}
}

// act queues fn behind earlier key presses.
func (m *Model) act(fn func(context.Context) error) tea.Cmd {
	select {
	case m.pending <- fn:
	default:
		m.lastErr = errActionQueueFull.Error()
	}
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case snapshotMsg:
		m.snap = engine.Snapshot(msg)
		return m, m.waitForSnapshot()
	case actionDoneMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		} else {
			m.lastErr = ""
		}
		return m, m.waitForResult()
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Split):
		return m.act(m.ctrl.Primary)
	case key.Matches(msg, m.keys.Pause):
		return m.act(m.ctrl.TogglePause)
	case key.Matches(msg, m.keys.Reset):
		return m.act(m.ctrl.Reset)
	case key.Matches(msg, m.keys.NextGroup):
		next, ok := nextGroup(m.groups, m.snap.GroupID)
		if !ok {
			return nil
		}
		return m.act(func(ctx context.Context) error {
			return m.ctrl.SelectGroup(ctx, next)
		})
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

// nextGroup returns the group after current in list order, wrapping around.
func nextGroup(groups []model.Group, current int64) (int64, bool) {
	if len(groups) == 0 {
		return 0, false
	}
	for i, g := range groups {
		if g.ID == current {
			return groups[(i+1)%len(groups)].ID, true
		}
	}
	return groups[0].ID, true
}

// View implements tea.Model.
func (m *Model) View() string {
	width := m.width
	if width == 0 {
		width = 60
	}
	contentWidth := width * 70 / 100
	if contentWidth < 30 {
		contentWidth = width
	}

	sections := []string{m.renderHeader()}
	sections = append(sections, m.renderClock())
	if len(m.snap.Items) == 0 {
		sections = append(sections, pendingStyle.Render("no splits in this group"))
	} else {
		active := -1
		if m.snap.Running || m.snap.Paused {
			active = splits.NextUnset(m.snap.Current)
		}
		sections = append(sections, renderRows(m.snap.Items, m.snap.HasAnyCompleteRun, active, contentWidth))
	}
	if footer := m.renderFooter(); footer != "" {
		sections = append(sections, "", footer)
	}
	if msg := m.errorLine(); msg != "" {
		sections = append(sections, errorStyle.Render(msg))
	}
	sections = append(sections, "", m.help.View(m.keys))

	content := lipgloss.NewStyle().Width(contentWidth).Render(strings.Join(sections, "\n"))
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderHeader() string {
	name := m.snap.GroupName
	if name == "" {
		name = "loading…"
	}
	state := m.snap.State.String()
	switch {
	case m.snap.LastRunCompleted && m.snap.Saving:
		state = "finished · saving"
	case m.snap.LastRunCompleted:
		state = "finished · split to start again"
	}
	return titleStyle.Render(name) + "  " + stateStyle.Render(state)
}

func (m *Model) renderClock() string {
	clock := splits.FormatMillis(m.snap.ElapsedMs)
	if m.snap.Paused {
		return pausedStyle.Render(clock)
	}
	return clockStyle.Render(clock)
}

func (m *Model) renderFooter() string {
	if len(m.snap.Items) == 0 {
		return ""
	}
	segments := make([]string, 0, 2)
	if m.snap.HasAnyCompleteRun {
		segments = append(segments, fmt.Sprintf("PB %s", splits.FormatMillis(m.snap.PersonalBestMs)))
	} else {
		segments = append(segments, "PB -")
	}
	if m.snap.SumOfBestComplete {
		segments = append(segments, fmt.Sprintf("Sum of Best %s", splits.FormatMillis(m.snap.SumOfBestMs)))
	} else {
		segments = append(segments, "Sum of Best -")
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func (m *Model) errorLine() string {
	if m.lastErr != "" {
		return m.lastErr
	}
	if m.snap.Err != "" {
		return m.snap.Err
	}
	return ""
}
