// Package session sequences calibration, measurement and preview phases and turns
// beat events into live and final heart-rate estimates.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/pulse/internal/bpm"
	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/ppg"
)

// Phase is the coarse session state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseMeasuring
	PhasePreview
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMeasuring:
		return "measuring"
	case PhasePreview:
		return "preview"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Active reports whether the phase accepts beats and samples.
func (p Phase) Active() bool {
	return p == PhaseMeasuring || p == PhasePreview
}

// Effects describes what a single machine step produced.
type Effects struct {
	Changed bool
	Pulse   bool
	Record  *model.HeartRateRecord
}

func (e *Effects) merge(o Effects) {
	e.Changed = e.Changed || o.Changed
	e.Pulse = e.Pulse || o.Pulse
	if o.Record != nil {
		e.Record = o.Record
	}
}

// Machine is the session state. Every method takes the instant at which the event
// happened, and deadlines due at or before that instant are applied first. Machine
// is not safe for concurrent use; Controller serializes access to it.
type Machine struct {
	params model.Params
	bounds bpm.Bounds
	newID  func() string

	mode     model.Mode
	protocol model.Protocol
	phase    Phase
	proc     *ppg.Processor

	waiting          bool
	calibrating      bool
	calibrationBeats int

	anchor    time.Time
	hasAnchor bool
	measuring []time.Duration
	preview   []time.Duration

	live     int
	hasLive  bool
	final    int
	hasFinal bool
	canShow  bool

	secondsLeft int
	deadline    time.Time
	revealAt    time.Time
	nextTick    time.Time

	stoppedEarly     bool
	startedAt        time.Time
	measurementStart time.Time
	err              error
}

// NewMachine returns an idle machine.
func NewMachine(params model.Params) *Machine {
	return &Machine{
		params: params,
		bounds: bpm.Bounds{Min: params.MinInterval, Max: params.MaxInterval},
		newID:  uuid.NewString,
		mode:   model.ModeTap,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Start begins a new session from Idle or Finished. Any residue of the previous
// session is discarded.
func (m *Machine) Start(now time.Time, mode model.Mode, protocol model.Protocol) bool {
	if m.phase.Active() {
		return false
	}
	m.reset()
	m.mode = mode
	m.protocol = protocol
	m.phase = PhaseMeasuring
	m.startedAt = now
	if mode.UsesSamples() {
		m.proc = ppg.NewProcessor(m.params)
	}
	if protocol == model.ProtocolCalibrated {
		m.calibrating = true
		if m.params.CalibrationBeats <= 0 {
			m.beginMeasurement(now)
		}
		return true
	}
	m.waiting = true
	m.canShow = true
	return true
}

// Stop ends an active session early. No record is produced.
func (m *Machine) Stop(time.Time) bool {
	if !m.phase.Active() {
		return false
	}
	m.reset()
	m.stoppedEarly = true
	return true
}

// Fail ends an active session because its source broke.
func (m *Machine) Fail(_ time.Time, err error) bool {
	if !m.phase.Active() {
		return false
	}
	m.reset()
	m.stoppedEarly = true
	if err == nil {
		err = errors.New("source failed")
	}
	m.err = err
	return true
}

// Beat records a discrete beat event such as a tap or a strap RR boundary.
func (m *Machine) Beat(at time.Time) Effects {
	eff := m.Tick(at)
	if !m.phase.Active() || m.mode.UsesSamples() {
		return eff
	}
	eff.merge(m.beat(at))
	return eff
}

// Sample feeds one luminance sample through the peak detector.
func (m *Machine) Sample(s ppg.Sample) Effects {
	eff := m.Tick(s.At)
	if !m.phase.Active() || m.proc == nil {
		return eff
	}
	if peak, ok := m.proc.Process(s); ok {
		eff.merge(m.beat(peak.At))
	}
	return eff
}

// Tick applies every deadline due at or before now, oldest first.
func (m *Machine) Tick(now time.Time) Effects {
	var eff Effects
	for {
		at, kind := m.nextDue()
		if at.IsZero() || now.Before(at) {
			return eff
		}
		eff.Changed = true
		switch kind {
		case dueCountdown:
			m.secondsLeft--
			if m.secondsLeft <= 0 {
				m.secondsLeft = 0
				m.nextTick = time.Time{}
			} else {
				m.nextTick = m.nextTick.Add(m.params.CountdownTick)
			}
		case dueReveal:
			m.canShow = true
			m.revealAt = time.Time{}
		case duePhase:
			eff.merge(m.expire(at))
		}
	}
}

// NextDeadline returns the earliest pending deadline.
func (m *Machine) NextDeadline() (time.Time, bool) {
	at, _ := m.nextDue()
	return at, !at.IsZero()
}

// Snapshot describes the current state.
func (m *Machine) Snapshot() Update {
	u := Update{
		Phase:             m.phase,
		PhaseName:         m.phase.String(),
		Mode:              m.mode,
		Protocol:          m.protocol,
		WaitingForSignal:  m.waiting,
		Calibrating:       m.calibrating,
		CalibrationBeats:  m.calibrationBeats,
		CalibrationTarget: m.params.CalibrationBeats,
		SecondsLeft:       m.secondsLeft,
		CanShowBPM:        m.canShow,
		Intervals:         len(m.measuring) + len(m.preview),
		StartedAt:         m.startedAt,
		MeasurementStart:  m.measurementStart,
	}
	if m.hasLive {
		u.LiveBPM = m.live
		u.HasLiveBPM = true
		if m.phase == PhasePreview {
			u.BeatPeriod = bpm.Period(m.live)
		}
	}
	if m.hasFinal {
		u.FinalBPM = m.final
		u.HasFinalBPM = true
	}
	if m.err != nil {
		u.Err = m.err.Error()
	}
	return u
}

type dueKind int

const (
	dueCountdown dueKind = iota
	dueReveal
	duePhase
)

func (m *Machine) nextDue() (time.Time, dueKind) {
	var at time.Time
	kind := dueCountdown
	consider := func(t time.Time, k dueKind) {
		if t.IsZero() {
			return
		}
		if at.IsZero() || t.Before(at) {
			at, kind = t, k
		}
	}
	// ties resolve in declaration order: countdown, reveal, then the phase change
	consider(m.nextTick, dueCountdown)
	consider(m.revealAt, dueReveal)
	consider(m.deadline, duePhase)
	return at, kind
}

func (m *Machine) beat(at time.Time) Effects {
	eff := Effects{Changed: true}
	if m.waiting {
		m.waiting = false
		m.deadline = at.Add(m.params.MeasureDuration)
		m.startCountdown(at, m.params.MeasureDuration)
	}
	if !m.hasAnchor {
		m.anchor = at
		m.hasAnchor = true
		return eff
	}
	d := at.Sub(m.anchor)
	m.anchor = at
	if !m.bounds.Validate(d) {
		return eff
	}
	eff.Pulse = true

	if m.calibrating {
		m.calibrationBeats++
		if m.calibrationBeats >= m.params.CalibrationBeats {
			m.beginMeasurement(at)
		}
		return eff
	}
	if m.phase == PhasePreview {
		m.preview = append(m.preview, d)
	} else {
		m.measuring = append(m.measuring, d)
	}
	m.updateLive()
	return eff
}

func (m *Machine) beginMeasurement(at time.Time) {
	m.calibrating = false
	m.measurementStart = at
	m.measuring = nil
	m.preview = nil
	m.hasLive = false
	m.canShow = false
	m.deadline = at.Add(m.params.MeasureDuration)
	m.revealAt = at.Add(m.params.RevealDelay)
	m.startCountdown(at, m.params.MeasureDuration)
}

func (m *Machine) startCountdown(at time.Time, d time.Duration) {
	tick := m.params.CountdownTick
	if tick <= 0 {
		m.secondsLeft = 0
		m.nextTick = time.Time{}
		return
	}
	m.secondsLeft = int(d / tick)
	m.nextTick = at.Add(tick)
}

func (m *Machine) expire(at time.Time) Effects {
	m.deadline = time.Time{}
	if m.phase == PhaseMeasuring && m.protocol == model.ProtocolSimple {
		m.phase = PhasePreview
		m.deadline = at.Add(m.params.PreviewDuration)
		m.startCountdown(at, m.params.PreviewDuration)
		m.updateLive()
		return Effects{Changed: true}
	}
	return m.finish(at)
}

func (m *Machine) finish(at time.Time) Effects {
	intervals := m.measuring
	if m.protocol == model.ProtocolSimple && m.params.FinalWindow == model.FinalMeasuringAndPreview {
		intervals = m.allIntervals()
	}
	m.final, m.hasFinal = bpm.Estimate(intervals)
	m.phase = PhaseFinished
	m.clearTimers()

	eff := Effects{Changed: true}
	if m.hasFinal && !m.stoppedEarly {
		eff.Record = &model.HeartRateRecord{
			ID:         m.newID(),
			BPM:        m.final,
			RecordedAt: at,
			Mode:       m.mode,
		}
	}
	return eff
}

func (m *Machine) updateLive() {
	window := bpm.Trailing(m.allIntervals(), m.params.LiveWindow)
	if v, ok := bpm.Estimate(window); ok {
		m.live, m.hasLive = v, true
	}
}

func (m *Machine) allIntervals() []time.Duration {
	out := make([]time.Duration, 0, len(m.measuring)+len(m.preview))
	out = append(out, m.measuring...)
	return append(out, m.preview...)
}

func (m *Machine) clearTimers() {
	m.deadline = time.Time{}
	m.revealAt = time.Time{}
	m.nextTick = time.Time{}
	m.secondsLeft = 0
}

func (m *Machine) reset() {
	m.phase = PhaseIdle
	m.proc = nil
	m.waiting = false
	m.calibrating = false
	m.calibrationBeats = 0
	m.anchor = time.Time{}
	m.hasAnchor = false
	m.measuring = nil
	m.preview = nil
	m.live, m.hasLive = 0, false
	m.final, m.hasFinal = 0, false
	m.canShow = false
	m.stoppedEarly = false
	m.startedAt = time.Time{}
	m.measurementStart = time.Time{}
	m.err = nil
	m.clearTimers()
}
