// Package bpm validates beat-to-beat intervals and converts them to beats per minute.
package bpm

import "time"

// Bounds is the inclusive range of plausible beat-to-beat intervals.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

// Validate reports whether d is a physiologically plausible interval.
func (b Bounds) Validate(d time.Duration) bool {
	return d >= b.Min && d <= b.Max
}

// Mean returns the average interval in seconds.
func Mean(intervals []time.Duration) float64 {
	if len(intervals) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range intervals {
		sum += d
	}
	return sum.Seconds() / float64(len(intervals))
}

// Estimate converts intervals to BPM, truncating toward zero.
func Estimate(intervals []time.Duration) (int, bool) {
	if len(intervals) == 0 {
		return 0, false
	}
	avg := Mean(intervals)
	if avg <= 0 {
		return 0, false
	}
	return int(60.0 / avg), true
}

// Trailing returns the last n intervals.
func Trailing(intervals []time.Duration, n int) []time.Duration {
	if n <= 0 || len(intervals) <= n {
		return intervals
	}
	return intervals[len(intervals)-n:]
}

// Period returns the beat period for a BPM value.
func Period(bpm int) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Minute / time.Duration(bpm)
}
