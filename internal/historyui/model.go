// Package historyui provides the Bubble Tea history interface.
package historyui

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

	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/stats"
)

const (
	tabOverview = iota
	tabRecords
	tabModes
)

const plotHeight = 10

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
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Store is the history backend the UI reads and prunes.
type Store interface {
	ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.HeartRateRecord, error)
	DeleteRecords(ctx context.Context, ids ...string) (int64, error)
}

// Model implements the Bubble Tea history UI.
type Model struct {
	store Store
	cfg   model.HistoryConfig

	report stats.Report
	errMsg string
	notice string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	records   table.Model
	rowIDs    []string

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	confirmDelete string
}

// NewModel constructs a history UI model.
func NewModel(st Store, cfg model.HistoryConfig) *Model {
	m := &Model{
		store: st,
		cfg:   cfg,
		tabs:  []string{"Overview", "Records", "By Mode"},
	}
	m.initInputs()
	m.records = buildRecordTable(nil, 80, plotHeight)
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
		if msg.Type == tea.KeyCtrlC || (msg.String() == "q" && !m.filterMode) {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if m.confirmDelete != "" {
			return m.updateConfirm(msg)
		}
		m.notice = ""
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
			if m.activeTab == tabRecords {
				m.confirmDelete = m.selectedID()
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabRecords {
				m.records.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabRecords {
				m.records.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabRecords {
				var cmd tea.Cmd
				m.records, cmd = m.records.Update(msg)
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
		newFilterInput("Mode: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
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
	f := m.cfg.Filter
	m.filterInputs[0].SetValue(string(f.Mode))
	if f.Since != nil {
		m.filterInputs[1].SetValue(f.Since.Format("2006-01-02"))
	} else {
		m.filterInputs[1].SetValue("")
	}
	if f.Last > 0 {
		m.filterInputs[2].SetValue(strconv.Itoa(f.Last))
	} else {
		m.filterInputs[2].SetValue("")
	}
	m.filterInputs[3].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && (m.errMsg != "" || m.notice != "" || m.confirmDelete != "") {
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
	m.records.SetWidth(m.width)
	m.records.SetHeight(maxInt(1, vpHeight-1))
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = maxInt(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabRecords {
		m.records.Focus()
	} else {
		m.records.Blur()
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
	tabs := padLines(m.renderTabs(), m.width)
	filters := padLines(m.renderFilterSummary(), m.width)
	return tabs + "\n" + filters
}

func (m *Model) renderFilterSummary() string {
	f := m.cfg.Filter
	mode := string(f.Mode)
	if mode == "" {
		mode = "any"
	}
	since := "any"
	if f.Since != nil {
		since = f.Since.Format("2006-01-02")
	}
	last := "all"
	if f.Last > 0 {
		last = strconv.Itoa(f.Last)
	}
	summary := fmt.Sprintf("Settings: mode=%s  since=%s  last=%s  window=%d", mode, since, last, m.cfg.CurveWindow)
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabRecords {
		help = "Nav: left/right  Select: up/down  Delete: d  Settings: /  Quit: q"
	}
	return headerStyle.Render(help)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	switch {
	case m.confirmDelete != "":
		return m.renderHelp() + "\n" + errorStyle.Render(fmt.Sprintf("Delete record %s? y/n", shortID(m.confirmDelete)))
	case m.errMsg != "":
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	case m.notice != "":
		return m.renderHelp() + "\n" + headerStyle.Render(m.notice)
	}
	return m.renderHelp()
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

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabRecords {
		if len(m.report.Records) == 0 {
			return fitLines("No measurements found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.records.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load history.")
		}
		return
	}
	m.errMsg = ""
	m.report = report
	m.rowIDs = recordIDs(report.Records)
	m.records.SetRows(recordRows(report.Records))
	if m.records.Cursor() >= len(m.rowIDs) {
		m.records.SetCursor(maxInt(0, len(m.rowIDs)-1))
	}
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, m.cfg.CurveWindow, width))
	m.viewports[tabModes].SetContent(renderModes(m.report.Modes))
}

func renderOverview(report stats.Report, window, width int) string {
	if report.Summary.Count == 0 {
		return "No measurements found."
	}
	summary := renderSummaryCards(report.Summary, width)
	var buf bytes.Buffer
	if err := stats.RenderTrendWithSize(&buf, report.Records, window, width, plotHeight, true); err != nil {
		return summary + "\n\n" + fmt.Sprintf("Failed to render trend: %v", err)
	}
	return strings.TrimRight(summary+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(s stats.Summary, width int) string {
	cards := []string{
		metricCard("Sessions", strconv.Itoa(s.Count)),
		metricCard("Average", fmt.Sprintf("%d bpm", s.Average)),
		metricCard("Last", fmt.Sprintf("%d bpm", s.Last)),
		metricCard("Lowest", fmt.Sprintf("%d bpm", s.Min)),
		metricCard("Highest", fmt.Sprintf("%d bpm", s.Max)),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderModes(modes []stats.ModeStat) string {
	if len(modes) == 0 {
		return "No measurements found."
	}
	var buf bytes.Buffer
	if err := stats.RenderModeTable(&buf, modes); err != nil {
		return fmt.Sprintf("Failed to render modes: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func recordColumns() []table.Column {
	return []table.Column{
		{Title: stats.RecordHeaders[0], Width: 20},
		{Title: stats.RecordHeaders[1], Width: 5},
		{Title: stats.RecordHeaders[2], Width: 8},
		{Title: stats.RecordHeaders[3], Width: 36},
	}
}

func recordRows(records []model.HeartRateRecord) []table.Row {
	src := stats.RecordRows(records)
	rows := make([]table.Row, len(src))
	for i, r := range src {
		rows[i] = table.Row(r)
	}
	return rows
}

// recordIDs mirrors the newest-first order of stats.RecordRows.
func recordIDs(records []model.HeartRateRecord) []string {
	ids := make([]string, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		ids = append(ids, records[i].ID)
	}
	return ids
}

func buildRecordTable(records []model.HeartRateRecord, width, height int) table.Model {
	t := table.New(
		table.WithColumns(recordColumns()),
		table.WithRows(recordRows(records)),
		table.WithHeight(maxInt(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(recordTableStyles())
	return t
}

func recordTableStyles() table.Styles {
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

func (m *Model) selectedID() string {
	i := m.records.Cursor()
	if i < 0 || i >= len(m.rowIDs) {
		return ""
	}
	return m.rowIDs[i]
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.confirmDelete
	m.confirmDelete = ""
	if msg.String() != "y" {
		return m, nil
	}
	n, err := m.store.DeleteRecords(context.Background(), id)
	if err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	m.notice = fmt.Sprintf("Deleted %d record(s)", n)
	m.refreshReport()
	m.updateLayout()
	return m, nil
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
	var mode model.Mode
	if raw := strings.TrimSpace(m.filterInputs[0].Value()); raw != "" {
		parsed, err := model.ParseMode(raw)
		if err != nil {
			return err
		}
		mode = parsed
	}

	var since *time.Time
	if raw := strings.TrimSpace(m.filterInputs[1].Value()); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		since = &parsed
	}

	last := 0
	if raw := strings.TrimSpace(m.filterInputs[2].Value()); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		last = parsed
	}

	window := 1
	if raw := strings.TrimSpace(m.filterInputs[3].Value()); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		window = parsed
	}

	m.cfg = model.HistoryConfig{
		Filter:      model.RecordFilter{Mode: mode, Since: since, Last: last},
		CurveWindow: window,
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
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
