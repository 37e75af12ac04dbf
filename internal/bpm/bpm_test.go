package bpm

import (
	"testing"
	"time"
)

func TestBoundsValidate(t *testing.T) {
	b := Bounds{Min: 270 * time.Millisecond, Max: 1500 * time.Millisecond}
	cases := []struct {
		d    time.Duration
		want bool
	}{
		{0, false},
		{269 * time.Millisecond, false},
		{270 * time.Millisecond, true},
		{800 * time.Millisecond, true},
		{1500 * time.Millisecond, true},
		{1500*time.Millisecond + time.Nanosecond, false},
		{3 * time.Second, false},
		{-time.Second, false},
	}
	for _, tc := range cases {
		if got := b.Validate(tc.d); got != tc.want {
			t.Fatalf("Validate(%v) = %v, want %v", tc.d, got, tc.want)
		}
	}
}

func TestEstimate(t *testing.T) {
	cases := []struct {
		name      string
		intervals []time.Duration
		want      int
		ok        bool
	}{
		{name: "empty", intervals: nil, ok: false},
		{name: "one second", intervals: []time.Duration{time.Second, time.Second, time.Second}, want: 60, ok: true},
		{name: "half second", intervals: []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, want: 120, ok: true},
		{name: "exact 100", intervals: []time.Duration{600 * time.Millisecond}, want: 100, ok: true},
		// 60/0.7 = 85.71 truncates rather than rounds
		{name: "truncates", intervals: []time.Duration{700 * time.Millisecond}, want: 85, ok: true},
		{name: "zero mean", intervals: []time.Duration{0, 0}, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Estimate(tc.intervals)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Estimate(%v) = %d,%v want %d,%v", tc.intervals, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestTrailing(t *testing.T) {
	in := []time.Duration{1, 2, 3, 4, 5, 6, 7}
	got := Trailing(in, 5)
	if len(got) != 5 || got[0] != 3 || got[4] != 7 {
		t.Fatalf("unexpected trailing window %v", got)
	}
	if got := Trailing(in[:2], 5); len(got) != 2 {
		t.Fatalf("expected short input returned whole, got %v", got)
	}
}

func TestPeriod(t *testing.T) {
	if got := Period(60); got != time.Second {
		t.Fatalf("expected 1s period, got %v", got)
	}
	if got := Period(0); got != 0 {
		t.Fatalf("expected zero period for zero bpm, got %v", got)
	}
}
