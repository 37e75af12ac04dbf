package source

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/verte-zerg/pulse/internal/ppg"
	"github.com/verte-zerg/pulse/internal/session"
)

// PPGSim generates a fingertip photoplethysmogram shape: a systolic bump, a smaller
// diastolic bump and a little deterministic noise, around a red level of 128.
type PPGSim struct {
	fps   float64
	bpm   float64
	noise float64
	phase float64
}

// NewPPGSim returns a generator sampled at fps with the given heart rate.
func NewPPGSim(fps, bpm, noise float64) *PPGSim {
	return &PPGSim{fps: fps, bpm: bpm, noise: noise}
}

// Next advances one frame and returns its red mean.
func (s *PPGSim) Next() float64 {
	s.phase += s.bpm / 60.0 / s.fps
	if s.phase >= 1 {
		s.phase -= 1
	}
	t := s.phase
	wave := gauss(t, 0.25, 0.07) + 0.35*gauss(t, 0.55, 0.09)
	n := s.noise * (2*fract(math.Sin(12345.678*t)*9876.543) - 1)
	return 128 + 12*wave + n
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }

// Simulated is a camera that synthesizes a pulse at a fixed rate.
type Simulated struct {
	FPS int
	BPM float64

	mu   sync.Mutex
	busy bool
}

// NewSimulated returns a simulated camera.
func NewSimulated(fps int, bpm float64) *Simulated {
	if fps <= 0 {
		fps = 30
	}
	return &Simulated{FPS: fps, BPM: bpm}
}

// Acquire implements session.Camera.
func (c *Simulated) Acquire(ctx context.Context) (session.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, ErrCameraBusy
	}
	c.busy = true
	return &simCapture{cam: c, sim: NewPPGSim(float64(c.FPS), c.BPM, 0.3)}, nil
}

type simCapture struct {
	cam      *Simulated
	sim      *PPGSim
	released bool
}

func (c *simCapture) Stream(ctx context.Context, emit func(ppg.Sample)) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.cam.FPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			emit(ppg.Sample{At: now, Value: c.sim.Next()})
		}
	}
}

func (c *simCapture) Release() error {
	c.cam.mu.Lock()
	defer c.cam.mu.Unlock()
	if c.released {
		return ErrCaptureClosed
	}
	c.released = true
	c.cam.busy = false
	return nil
}
