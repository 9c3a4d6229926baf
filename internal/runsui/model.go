// Package runsui provides the Bubble Tea runs history interface.
package runsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/splits"
	"github.com/verte-zerg/tuisplit/internal/stats"
)

const (
	tabOverview = iota
	tabRuns
	tabCurves
)

const (
	plotHeight   = 10
	topTimeSaves = 5
)

// Store is the persistence used by the runs screen.
type Store interface {
	stats.ReportStore
	DeleteRun(ctx context.Context, runID int64) error
}

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	goldStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color(splits.StatusColor(model.StatusGold)))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

type modalKind int

const (
	modalNone modalKind = iota
	modalConfirmDelete
	modalShare
)

// Model implements the Bubble Tea runs UI.
type Model struct {
	store Store
	cfg   model.RunsConfig
	now   func() time.Time

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	runsTable table.Model
	// rowRunIDs maps table rows to run ids; zero for the PB and best possible rows.
	rowRunIDs []int64

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	modal       modalKind
	modalRunID  int64
	modalText   string
	pendingNote string
}

// NewModel constructs a runs UI model.
func NewModel(st Store, cfg model.RunsConfig) *Model {
	if cfg.CurveWindow < 1 {
		cfg.CurveWindow = 5
	}
	m := &Model{
		store: st,
		cfg:   cfg,
		now:   time.Now,
		tabs:  []string{"Overview", "Runs", "Curves"},
	}
	m.initInputs()
	m.runsTable = newRunsTable()
	m.initViewports()
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.modal != modalNone {
			return m.updateModal(msg)
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if msg.String() == "q" {
			return m, tea.Quit
		}
		if m.activeTab == tabRuns {
			m.runsTable.Focus()
		} else {
			m.runsTable.Blur()
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.renderTabContents()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.renderTabContents()
			return m, nil
		case "/":
			return m.startFilter()
		case "d", "delete":
			if m.activeTab == tabRuns {
				m.confirmDelete()
			}
			return m, nil
		case "s", "enter":
			if m.activeTab == tabRuns {
				m.openShare()
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabRuns {
				m.runsTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabRuns {
				m.runsTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabRuns {
				var cmd tea.Cmd
				m.runsTable, cmd = m.runsTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.modal != modalNone {
		return fitLines(m.renderModal(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Group id: "),
		newFilterInput("Curve window: "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	m.filterInputs[0].SetValue(strconv.FormatInt(m.cfg.GroupID, 10))
	m.filterInputs[1].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && (m.errMsg != "" || m.pendingNote != "") {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.runsTable.SetWidth(m.width)
	m.runsTable.SetHeight(maxInt(1, vpHeight-1))
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = maxInt(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabRuns {
		m.runsTable.Focus()
	} else {
		m.runsTable.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	name := m.report.Group.Name
	if name == "" {
		name = fmt.Sprintf("Group %d", m.cfg.GroupID)
	}
	summary := fmt.Sprintf("Group: %s  window=%d", name, m.cfg.CurveWindow)
	return padLines(m.renderTabs(), m.width) + "\n" + headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabRuns {
		help = "Nav: left/right  Select: up/down  Share: s  Delete: d  Settings: /  Quit: q"
	}
	return headerStyle.Render(help)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	lines := []string{m.renderHelp()}
	if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(m.errMsg))
	} else if m.pendingNote != "" {
		lines = append(lines, headerStyle.Render(m.pendingNote))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabRuns {
		if len(m.rowRunIDs) == 0 {
			return fitLines("No runs found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.runsTable.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg.GroupID)
	if err != nil {
		m.errMsg = err.Error()
		m.report = stats.Report{}
		m.rowRunIDs = nil
		m.runsTable.SetRows(nil)
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load runs.")
		}
		return
	}
	m.errMsg = ""
	m.report = report
	m.applyRunsTable()
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	if len(m.viewports) == 0 || m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, m.cfg.CurveWindow, width))
	m.viewports[tabCurves].SetContent(renderSplitCurves(m.report, m.cfg.CurveWindow, width))
}

func renderOverview(r stats.Report, window, width int) string {
	if len(r.Runs) == 0 {
		return "No runs found."
	}
	parts := []string{renderSummaryCards(r, width)}
	if saves := stats.TopTimeSaves(r, topTimeSaves); len(saves) > 0 {
		lines := []string{cardTitleStyle.Render("Possible time save")}
		for _, save := range saves {
			lines = append(lines, fmt.Sprintf("%-20s %s", truncateLine(save.Name, 20), goldStyle.Render("-"+splits.FormatMillis(save.SaveMs))))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	var buf bytes.Buffer
	if err := stats.RenderCurvesWithSize(&buf, r, window, width, plotHeight, true); err != nil {
		parts = append(parts, fmt.Sprintf("Failed to render curves: %v", err))
	} else if buf.Len() > 0 {
		parts = append(parts, strings.TrimRight(buf.String(), "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func renderSummaryCards(r stats.Report, width int) string {
	pb := "-"
	if r.HasAnyCompleteRun && len(r.BestCumulative) > 0 {
		pb = splits.FormatMillis(r.BestCumulative[len(r.BestCumulative)-1])
	}
	sob := "-"
	if r.SumOfBestComplete {
		sob = splits.FormatMillis(r.SumOfBestMs)
	}
	complete := 0
	for _, row := range r.Runs {
		if row.Complete {
			complete++
		}
	}
	cards := []string{
		metricCard("PB", pb),
		metricCard("Sum of Best", sob),
		metricCard("Runs", strconv.Itoa(len(r.Runs))),
		metricCard("Complete", strconv.Itoa(complete)),
	}
	if totals := r.Totals(); len(totals) > 1 {
		cards = append(cards, metricCard("Trend", stats.Sparkline(totals)))
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderSplitCurves(r stats.Report, window, width int) string {
	if len(r.Runs) == 0 {
		return "No runs found."
	}
	var buf bytes.Buffer
	if err := stats.RenderSplitCurvesWithSize(&buf, r, window, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render split curves: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func newRunsTable() table.Model {
	t := table.New(table.WithHeight(1))
	t.SetStyles(runsTableStyles())
	return t
}

func (m *Model) applyRunsTable() {
	headers, rows := stats.RunsTableData(m.report, m.now())
	ids := make([]int64, 0, len(rows))
	if m.report.HasAnyCompleteRun {
		ids = append(ids, 0)
	}
	if len(m.report.TheoreticalBest) > 0 {
		ids = append(ids, 0)
	}
	for _, run := range m.report.Runs {
		ids = append(ids, run.Run.ID)
	}
	if len(m.report.Runs) == 0 {
		ids = nil
	}
	m.rowRunIDs = ids

	columns := make([]table.Column, len(headers))
	for i, h := range headers {
		w := lipgloss.Width(h)
		for _, row := range rows {
			if i < len(row) && lipgloss.Width(row[i]) > w {
				w = lipgloss.Width(row[i])
			}
		}
		columns[i] = table.Column{Title: h, Width: w}
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	// Columns must shrink before rows do, or the table renders stale cells.
	// Emptying the rows moves the cursor to -1, so it is restored afterwards.
	prev := m.runsTable.Cursor()
	m.runsTable.SetRows(nil)
	m.runsTable.SetColumns(columns)
	m.runsTable.SetRows(tableRows)
	m.runsTable.SetCursor(clampCursor(prev, len(tableRows)))
	m.updateLayout()
}

func runsTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

// selectedRow returns the run id under the cursor and the share text for that row.
func (m *Model) selectedRow() (int64, string, bool) {
	idx := m.runsTable.Cursor()
	if idx < 0 || idx >= len(m.rowRunIDs) {
		return 0, "", false
	}
	runID := m.rowRunIDs[idx]
	if runID != 0 {
		row, ok := m.report.FindRun(runID)
		if !ok {
			return 0, "", false
		}
		return runID, stats.RunMessage(m.report, row), true
	}
	if m.report.HasAnyCompleteRun && idx == 0 {
		return 0, stats.PBMessage(m.report), true
	}
	return 0, stats.BestPossibleMessage(m.report), true
}

func (m *Model) confirmDelete() {
	runID, _, ok := m.selectedRow()
	if !ok || runID == 0 {
		return
	}
	m.modal = modalConfirmDelete
	m.modalRunID = runID
}

func (m *Model) openShare() {
	_, text, ok := m.selectedRow()
	if !ok {
		return
	}
	m.modal = modalShare
	m.modalText = text
}

func (m *Model) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalConfirmDelete:
		switch msg.String() {
		case "y", "Y":
			runID := m.modalRunID
			m.modal = modalNone
			m.modalRunID = 0
			if err := m.store.DeleteRun(context.Background(), runID); err != nil {
				m.pendingNote = ""
				m.errMsg = fmt.Sprintf("delete run %d: %v", runID, err)
				return m, nil
			}
			m.refreshReport()
			m.pendingNote = fmt.Sprintf("Run %d deleted.", runID)
			return m, nil
		case "n", "N", "esc", "q":
			m.modal = modalNone
			m.modalRunID = 0
		}
	case modalShare:
		switch msg.String() {
		case "esc", "enter", "q":
			m.modal = modalNone
			m.modalText = ""
		}
	}
	return m, nil
}

func (m *Model) renderModal() string {
	var body []string
	switch m.modal {
	case modalConfirmDelete:
		body = []string{
			cardValueStyle.Render("Delete run"),
			fmt.Sprintf("Delete Run %d? This cannot be undone.", m.modalRunID),
			headerStyle.Render("y to delete / n to cancel"),
		}
	case modalShare:
		body = []string{
			m.modalText,
			"",
			headerStyle.Render("Select the text to copy. Enter/Esc to close"),
		}
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.pendingNote = ""
		m.refreshReport()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	if count == 0 {
		return nil
	}
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.filterIndex = idx
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	groupInput := strings.TrimSpace(m.filterInputs[0].Value())
	groupID, err := strconv.ParseInt(groupInput, 10, 64)
	if err != nil || groupID < 0 {
		return fmt.Errorf("invalid group id (use 0 or positive integer)")
	}
	windowInput := strings.TrimSpace(m.filterInputs[1].Value())
	window := m.cfg.CurveWindow
	if windowInput != "" {
		parsed, err := strconv.Atoi(windowInput)
		if err != nil {
			return fmt.Errorf("invalid curve window (use integer)")
		}
		if parsed < 1 {
			return fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		window = parsed
	}
	m.cfg = model.RunsConfig{GroupID: groupID, CurveWindow: window}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// clampCursor keeps a table cursor inside [0, rows-1]; zero when there are no rows.
func clampCursor(cursor, rows int) int {
	if cursor < 0 || rows == 0 {
		return 0
	}
	if cursor >= rows {
		return rows - 1
	}
	return cursor
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	if n%5 == 0 {
		return n + 5
	}
	return ((n / 5) + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func modalWidth(width int) int {
	return maxInt(40, minInt(width-4, 80))
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
