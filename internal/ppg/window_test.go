package ppg

import (
	"math"
	"testing"
)

func TestRollingWindowNeverExceedsCapacity(t *testing.T) {
	w := NewRollingWindow(45)
	for i := 0; i < 1000; i++ {
		w.Push(float64(i))
		if w.Len() > 45 {
			t.Fatalf("window grew to %d after %d pushes", w.Len(), i+1)
		}
	}
	values := w.Values()
	if len(values) != 45 {
		t.Fatalf("expected 45 values, got %d", len(values))
	}
	if values[0] != 955 || values[44] != 999 {
		t.Fatalf("expected oldest 955 and newest 999, got %v and %v", values[0], values[44])
	}
}

func TestRollingWindowMeanStd(t *testing.T) {
	w := NewRollingWindow(4)
	if mean, std := w.MeanStd(); mean != 0 || std != 0 {
		t.Fatalf("empty window: got mean=%v std=%v", mean, std)
	}
	w.Push(3)
	if mean, std := w.MeanStd(); mean != 3 || std != 0 {
		t.Fatalf("single value: got mean=%v std=%v", mean, std)
	}
	for _, v := range []float64{2, 4, 4, 5} {
		w.Push(v)
	}
	// window now holds 2,4,4,5
	mean, std := w.MeanStd()
	if math.Abs(mean-3.75) > 1e-9 {
		t.Fatalf("expected mean 3.75, got %v", mean)
	}
	if math.Abs(std-math.Sqrt(2.75/3)) > 1e-9 {
		t.Fatalf("unexpected sample std %v", std)
	}
}

func TestRollingWindowReset(t *testing.T) {
	w := NewRollingWindow(3)
	w.Push(1)
	w.Push(2)
	w.Reset()
	if w.Len() != 0 || w.Values() != nil {
		t.Fatalf("expected empty window after reset")
	}
	w.Push(7)
	if got := w.Values(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("unexpected values after reset: %v", got)
	}
}
