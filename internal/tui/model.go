// Package tui provides the Bubble Tea measurement screen.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/session"
)

const pulseFlash = 150 * time.Millisecond

// Controller is the session surface the screen drives.
type Controller interface {
	Start(mode model.Mode, protocol model.Protocol)
	StopEarly()
	RecordBeat()
}

// History provides the footer figures.
type History interface {
	Average(ctx context.Context, filter model.RecordFilter) (avg, count int, err error)
	ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.HeartRateRecord, error)
}

// UpdateMsg carries a session snapshot into the program.
type UpdateMsg session.Update

type pulseOffMsg struct{ seq int }

type metronomeMsg struct{ seq int }

// Observe returns a session observer that forwards updates to p.
func Observe(p *tea.Program) func(session.Update) {
	return func(u session.Update) {
		p.Send(UpdateMsg(u))
	}
}

// Model implements the Bubble Tea measurement UI.
type Model struct {
	ctrl     Controller
	history  History
	mode     model.Mode
	protocol model.Protocol

	width  int
	height int

	state    session.Update
	pulsing  bool
	pulseSeq int
	metroSeq int
	metroOn  bool
	period   time.Duration

	lastBPM  int
	hasLast  bool
	avgBPM   int
	sessions int
}

var (
	heartOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	heartOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5A2A2B"))
	bpmStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

var heartArt = []string{
	" ██   ██ ",
	"█████████",
	" ███████ ",
	"  █████  ",
	"   ███   ",
	"    █    ",
}

// NewModel constructs the measurement screen.
func NewModel(ctrl Controller, history History, mode model.Mode, protocol model.Protocol) *Model {
	m := &Model{ctrl: ctrl, history: history, mode: mode, protocol: protocol}
	m.state.Mode = mode
	m.state.Protocol = protocol
	m.loadFooterStats()
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
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case UpdateMsg:
		return m, m.applyUpdate(session.Update(msg))
	case pulseOffMsg:
		if msg.seq == m.pulseSeq {
			m.pulsing = false
		}
		return m, nil
	case metronomeMsg:
		if msg.seq != m.metroSeq || m.period <= 0 {
			return m, nil
		}
		m.metroOn = !m.metroOn
		return m, m.metronomeTick(m.period / 2)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.state.Phase.Active() {
			m.ctrl.StopEarly()
		}
		return tea.Quit
	case "enter", "s":
		if !m.state.Phase.Active() {
			m.ctrl.Start(m.mode, m.protocol)
		}
	case "esc", "x":
		if m.state.Phase.Active() {
			m.ctrl.StopEarly()
		}
	case " ":
		switch {
		case m.mode == model.ModeTap && m.state.Phase.Active():
			m.ctrl.RecordBeat()
		case !m.state.Phase.Active():
			m.ctrl.Start(m.mode, m.protocol)
			if m.mode == model.ModeTap {
				m.ctrl.RecordBeat()
			}
		}
	}
	return nil
}

func (m *Model) applyUpdate(u session.Update) tea.Cmd {
	m.state = u
	var cmds []tea.Cmd
	if u.Record != nil {
		m.loadFooterStats()
	}
	if u.Pulse {
		m.pulsing = true
		m.pulseSeq++
		seq := m.pulseSeq
		cmds = append(cmds, tea.Tick(pulseFlash, func(time.Time) tea.Msg { return pulseOffMsg{seq: seq} }))
	}
	if u.BeatPeriod != m.period {
		m.period = u.BeatPeriod
		m.metroSeq++
		m.metroOn = false
		if m.period > 0 {
			cmds = append(cmds, m.metronomeTick(m.period/2))
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) metronomeTick(d time.Duration) tea.Cmd {
	seq := m.metroSeq
	return tea.Tick(d, func(time.Time) tea.Msg { return metronomeMsg{seq: seq} })
}

// View implements tea.Model.
func (m *Model) View() string {
	heartStyle := heartOffStyle
	if m.pulsing || m.metroOn {
		heartStyle = heartOnStyle
	}
	lines := []string{
		footerStyle.Render(fmt.Sprintf("pulse · %s · %s", m.mode, m.protocol)),
		"",
		heartStyle.Render(strings.Join(heartArt, "\n")),
		"",
		bpmStyle.Render(m.bpmText()),
		statusStyle.Render(m.statusText()),
	}
	if m.state.Err != "" {
		lines = append(lines, errorStyle.Render(m.state.Err))
	}
	lines = append(lines, "", footerStyle.Render(m.helpText()))
	content := lipgloss.JoinVertical(lipgloss.Center, lines...)

	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) bpmText() string {
	if m.state.Phase == session.PhaseFinished {
		if m.state.HasFinalBPM {
			return fmt.Sprintf("%d bpm", m.state.FinalBPM)
		}
		return "-- bpm"
	}
	if bpm, ok := m.state.VisibleBPM(); ok {
		return fmt.Sprintf("%d bpm", bpm)
	}
	return "-- bpm"
}

func (m *Model) statusText() string {
	u := m.state
	switch u.Phase {
	case session.PhaseMeasuring:
		switch {
		case u.WaitingForSignal && m.mode == model.ModeTap:
			return "Tap space on every beat to begin"
		case u.WaitingForSignal && m.mode == model.ModeCamera:
			return "Cover the camera with your fingertip"
		case u.WaitingForSignal:
			return "Waiting for the first beat"
		case u.Calibrating:
			return fmt.Sprintf("Calibrating %d/%d", u.CalibrationBeats, u.CalibrationTarget)
		case !u.CanShowBPM:
			return fmt.Sprintf("Measuring · %ds · settling", u.SecondsLeft)
		default:
			return fmt.Sprintf("Measuring · %ds", u.SecondsLeft)
		}
	case session.PhasePreview:
		return fmt.Sprintf("Preview · %ds", u.SecondsLeft)
	case session.PhaseFinished:
		if u.HasFinalBPM && u.Err == "" {
			return "Saved"
		}
		if u.HasFinalBPM {
			return "Not saved"
		}
		return "No valid beats recorded"
	default:
		return "Press enter to start"
	}
}

func (m *Model) helpText() string {
	if m.state.Phase.Active() {
		if m.mode == model.ModeTap {
			return "space tap · esc stop · q quit"
		}
		return "esc stop · q quit"
	}
	return "enter start · q quit"
}

func (m *Model) loadFooterStats() {
	if m.history == nil {
		return
	}
	ctx := context.Background()
	avg, count, err := m.history.Average(ctx, model.RecordFilter{})
	if err != nil {
		logErrf("failed to load history: %v\n", err)
		return
	}
	m.avgBPM, m.sessions = avg, count
	last, err := m.history.ListRecords(ctx, model.RecordFilter{Last: 1})
	if err != nil {
		logErrf("failed to load history: %v\n", err)
		return
	}
	if len(last) > 0 {
		m.lastBPM = last[0].BPM
		m.hasLast = true
	}
}

func (m *Model) renderFooter() string {
	if m.sessions == 0 && !m.hasLast {
		return ""
	}
	segments := []string{}
	if m.hasLast {
		segments = append(segments, fmt.Sprintf("Last %d bpm", m.lastBPM))
	}
	segments = append(segments, fmt.Sprintf("Average %d bpm over %d sessions", m.avgBPM, m.sessions))
	return footerStyle.Render(strings.Join(segments, "  "))
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
