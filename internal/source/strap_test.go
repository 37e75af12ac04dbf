package source

import (
	"testing"
	"time"
)

func TestParseMeasurement(t *testing.T) {
	cases := []struct {
		name   string
		data   []byte
		hr     int
		energy int
		rr     []time.Duration
	}{
		{name: "uint8 rate", data: []byte{0x00, 72}, hr: 72},
		{name: "uint16 rate", data: []byte{0x01, 0x2c, 0x01}, hr: 300},
		{
			name: "rr intervals",
			data: []byte{0x10, 60, 0x00, 0x04, 0x00, 0x02},
			hr:   60,
			rr:   []time.Duration{time.Second, 500 * time.Millisecond},
		},
		{
			name:   "energy then rr",
			data:   []byte{0x18, 80, 0x10, 0x00, 0x00, 0x03},
			hr:     80,
			energy: 16,
			rr:     []time.Duration{750 * time.Millisecond},
		},
	}
	for _, tc := range cases {
		m, err := ParseMeasurement(tc.data)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if m.HeartRate != tc.hr || m.EnergyExpended != tc.energy {
			t.Fatalf("%s: unexpected measurement %+v", tc.name, m)
		}
		if len(m.RR) != len(tc.rr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.rr, m.RR)
		}
		for i := range tc.rr {
			if m.RR[i] != tc.rr[i] {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.rr, m.RR)
			}
		}
	}
}

func TestParseMeasurementTruncated(t *testing.T) {
	for _, data := range [][]byte{nil, {0x00}, {0x01, 0x10}, {0x08, 70, 0x01}} {
		if _, err := ParseMeasurement(data); err == nil {
			t.Fatalf("expected an error for %v", data)
		}
	}
}

func TestRRTrackerChainsIntervals(t *testing.T) {
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	var tr RRTracker

	first := tr.Beats(base, Measurement{RR: []time.Duration{time.Second}})
	if len(first) != 2 || !first[0].Equal(base.Add(-time.Second)) || !first[1].Equal(base) {
		t.Fatalf("unexpected first beats: %v", first)
	}

	next := tr.Beats(base.Add(1100*time.Millisecond), Measurement{RR: []time.Duration{800 * time.Millisecond, 900 * time.Millisecond}})
	if len(next) != 2 {
		t.Fatalf("unexpected beats: %v", next)
	}
	if !next[0].Equal(base.Add(800*time.Millisecond)) || !next[1].Equal(base.Add(1700*time.Millisecond)) {
		t.Fatalf("expected beats chained from the last one, got %v", next)
	}
}

func TestRRTrackerResyncsAfterGap(t *testing.T) {
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	var tr RRTracker
	tr.Beats(base, Measurement{RR: []time.Duration{time.Second}})

	later := base.Add(10 * time.Second)
	beats := tr.Beats(later, Measurement{RR: []time.Duration{time.Second}})
	if len(beats) != 1 || !beats[0].Equal(later) {
		t.Fatalf("expected re-anchored beat at arrival, got %v", beats)
	}
}

func TestRRTrackerNeverGoesBackwards(t *testing.T) {
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	var tr RRTracker
	first := tr.Beats(base, Measurement{RR: []time.Duration{time.Second}})
	last := first[len(first)-1]

	// RR sum far exceeds the time since the previous notification
	beats := tr.Beats(base.Add(200*time.Millisecond), Measurement{RR: []time.Duration{time.Second, time.Second, time.Second}})
	prev := last
	for _, b := range beats {
		if !b.After(prev) {
			t.Fatalf("beat %v not after %v in %v", b, prev, beats)
		}
		prev = b
	}
}

func TestRRTrackerPacesFromRate(t *testing.T) {
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	var tr RRTracker
	if got := tr.Beats(base, Measurement{HeartRate: 120}); len(got) != 1 {
		t.Fatalf("expected an anchoring beat, got %v", got)
	}
	got := tr.Beats(base.Add(1200*time.Millisecond), Measurement{HeartRate: 120})
	if len(got) != 2 || !got[1].Equal(base.Add(time.Second)) {
		t.Fatalf("expected beats every 500ms, got %v", got)
	}
	if got := tr.Beats(base.Add(2*time.Second), Measurement{}); got != nil {
		t.Fatalf("expected no beats without a rate, got %v", got)
	}
}
