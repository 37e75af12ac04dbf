// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode identifies the beat producer of a session.
type Mode string

const (
	ModeTap    Mode = "tap"
	ModeCamera Mode = "camera"
	ModeStrap  Mode = "strap"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTap, ModeCamera, ModeStrap:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (use tap, camera or strap)", s)
	}
}

// UsesSamples reports whether the mode feeds luminance samples rather than beats.
func (m Mode) UsesSamples() bool {
	return m == ModeCamera
}

// Protocol selects the session phase sequence.
type Protocol string

const (
	// ProtocolSimple runs Measuring then Preview, with the countdown gated on the first beat.
	ProtocolSimple Protocol = "simple"
	// ProtocolCalibrated counts calibration beats before a single measurement window.
	ProtocolCalibrated Protocol = "calibrated"
)

// ParseProtocol validates a protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolSimple, ProtocolCalibrated:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol %q (use simple or calibrated)", s)
	}
}

// FinalWindow selects which intervals feed the final BPM of a simple-protocol session.
type FinalWindow string

const (
	FinalMeasuring           FinalWindow = "measuring"
	FinalMeasuringAndPreview FinalWindow = "measuring+preview"
)

// ParseFinalWindow validates a final window policy name.
func ParseFinalWindow(s string) (FinalWindow, error) {
	switch w := FinalWindow(strings.ToLower(strings.TrimSpace(s))); w {
	case FinalMeasuring, FinalMeasuringAndPreview:
		return w, nil
	default:
		return "", fmt.Errorf("unknown final window %q (use measuring or measuring+preview)", s)
	}
}

// Params holds the tuned constants of the measurement engine.
type Params struct {
	EMAWeight          float64
	WindowSize         int
	ThresholdScale     float64
	ThresholdFloor     float64
	MinInterval        time.Duration
	MaxInterval        time.Duration
	MeasureDuration    time.Duration
	PreviewDuration    time.Duration
	CalibrationBeats   int
	RevealDelay        time.Duration
	LiveWindow         int
	CountdownTick      time.Duration
	FinalWindow        FinalWindow
	SampleBufferLength int
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		EMAWeight:          0.2,
		WindowSize:         45,
		ThresholdScale:     0.5,
		ThresholdFloor:     0.5,
		MinInterval:        270 * time.Millisecond,
		MaxInterval:        1500 * time.Millisecond,
		MeasureDuration:    12 * time.Second,
		PreviewDuration:    10 * time.Second,
		CalibrationBeats:   4,
		RevealDelay:        4 * time.Second,
		LiveWindow:         5,
		CountdownTick:      time.Second,
		FinalWindow:        FinalMeasuring,
		SampleBufferLength: 256,
	}
}

// HeartRateRecord is a finalized session result.
type HeartRateRecord struct {
	ID         string
	BPM        int
	RecordedAt time.Time
	Mode       Mode
}

// RecordFilter narrows history queries.
type RecordFilter struct {
	Mode  Mode
	Since *time.Time
	Last  int
}

// HistoryConfig defines filters and options for history output.
type HistoryConfig struct {
	Filter      RecordFilter
	CurveWindow int
}
