package session

import (
	"context"
	"errors"
	"time"

	"github.com/verte-zerg/pulse/internal/model"
)

// Update is the observable state pushed to observers after every change.
type Update struct {
	Phase             Phase                  `json:"-"`
	PhaseName         string                 `json:"phase"`
	Mode              model.Mode             `json:"mode"`
	Protocol          model.Protocol         `json:"protocol"`
	WaitingForSignal  bool                   `json:"waiting_for_signal"`
	Calibrating       bool                   `json:"calibrating"`
	CalibrationBeats  int                    `json:"calibration_beats"`
	CalibrationTarget int                    `json:"calibration_target"`
	SecondsLeft       int                    `json:"seconds_left"`
	LiveBPM           int                    `json:"live_bpm,omitempty"`
	HasLiveBPM        bool                   `json:"has_live_bpm"`
	CanShowBPM        bool                   `json:"can_show_bpm"`
	FinalBPM          int                    `json:"final_bpm,omitempty"`
	HasFinalBPM       bool                   `json:"has_final_bpm"`
	Pulse             bool                   `json:"pulse"`
	BeatPeriod        time.Duration          `json:"beat_period_ns,omitempty"`
	Intervals         int                    `json:"intervals"`
	StartedAt         time.Time              `json:"started_at"`
	MeasurementStart  time.Time              `json:"measurement_start"`
	Record            *model.HeartRateRecord `json:"record,omitempty"`
	Err               string                 `json:"error,omitempty"`
}

// VisibleBPM returns the live estimate when the session allows showing it.
func (u Update) VisibleBPM() (int, bool) {
	if !u.CanShowBPM || !u.HasLiveBPM {
		return 0, false
	}
	return u.LiveBPM, true
}

// Sink persists or forwards finalized records.
type Sink interface {
	Save(ctx context.Context, rec model.HeartRateRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec model.HeartRateRecord) error

func (f SinkFunc) Save(ctx context.Context, rec model.HeartRateRecord) error {
	return f(ctx, rec)
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []Sink

func (ms MultiSink) Save(ctx context.Context, rec model.HeartRateRecord) error {
	var errs []error
	for _, s := range ms {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
