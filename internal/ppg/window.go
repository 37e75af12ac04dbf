// Package ppg turns a camera luminance stream into cardiac peak events.
package ppg

import "math"

// RollingWindow is a fixed-capacity FIFO of the most recent values.
type RollingWindow struct {
	buf   []float64
	pos   int
	count int
}

// NewRollingWindow creates a window holding at most capacity values.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow{buf: make([]float64, capacity)}
}

// Push appends a value, evicting the oldest one when full.
func (w *RollingWindow) Push(v float64) {
	w.buf[w.pos] = v
	w.pos = (w.pos + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of stored values.
func (w *RollingWindow) Len() int {
	return w.count
}

// Cap returns the configured capacity.
func (w *RollingWindow) Cap() int {
	return len(w.buf)
}

// Values returns the stored values oldest first.
func (w *RollingWindow) Values() []float64 {
	if w.count == 0 {
		return nil
	}
	out := make([]float64, w.count)
	if w.count < len(w.buf) {
		copy(out, w.buf[:w.count])
		return out
	}
	n := copy(out, w.buf[w.pos:])
	copy(out[n:], w.buf[:w.pos])
	return out
}

// Reset empties the window.
func (w *RollingWindow) Reset() {
	w.pos = 0
	w.count = 0
}

// MeanStd returns the mean and sample standard deviation of the window.
// The variance divisor is floored at 1, so fewer than two values give zero deviation.
func (w *RollingWindow) MeanStd() (mean, std float64) {
	if w.count == 0 {
		return 0, 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.buf[i]
	}
	mean = sum / float64(w.count)
	var sq float64
	for i := 0; i < w.count; i++ {
		d := w.buf[i] - mean
		sq += d * d
	}
	den := w.count - 1
	if den < 1 {
		den = 1
	}
	return mean, math.Sqrt(sq / float64(den))
}
