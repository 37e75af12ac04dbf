package ppg

import (
	"math"
	"time"

	"github.com/verte-zerg/pulse/internal/model"
)

// Sample is one luminance reading.
type Sample struct {
	At    time.Time
	Value float64
}

// PeakEvent marks a detected pulse peak.
type PeakEvent struct {
	At time.Time
}

// Processor smooths samples and detects peaks. It is not safe for concurrent use;
// a session owns exactly one and replaces it on every start.
type Processor struct {
	weight         float64
	thresholdScale float64
	thresholdFloor float64

	window        *RollingWindow
	ema           float64
	seeded        bool
	lastCentered  float64
	lastThreshold float64
}

// NewProcessor builds a processor from the engine parameters.
func NewProcessor(p model.Params) *Processor {
	return &Processor{
		weight:         p.EMAWeight,
		thresholdScale: p.ThresholdScale,
		thresholdFloor: p.ThresholdFloor,
		window:         NewRollingWindow(p.WindowSize),
	}
}

// Process consumes one sample and reports a peak when the centered signal starts to
// descend right after a sample that cleared the adaptive threshold.
func (p *Processor) Process(s Sample) (PeakEvent, bool) {
	if !p.seeded {
		p.ema = s.Value
		p.seeded = true
	}
	p.ema = p.weight*s.Value + (1-p.weight)*p.ema

	p.window.Push(p.ema)
	mean, std := p.window.MeanStd()
	centered := p.ema - mean
	threshold := math.Max(p.thresholdScale*std, p.thresholdFloor)
	p.lastThreshold = threshold

	derivative := centered - p.lastCentered
	peak := derivative <= 0 && p.lastCentered > threshold
	p.lastCentered = centered

	if !peak {
		return PeakEvent{}, false
	}
	return PeakEvent{At: s.At}, true
}

// Threshold returns the threshold used for the latest sample.
func (p *Processor) Threshold() float64 {
	return p.lastThreshold
}

// Reset clears all smoothing and baseline state.
func (p *Processor) Reset() {
	p.window.Reset()
	p.ema = 0
	p.seeded = false
	p.lastCentered = 0
	p.lastThreshold = 0
}
