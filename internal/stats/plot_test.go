package stats

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Heart Rate", []Series{
		{Name: "BPM", Values: []float64{62, 70, 81, 66, 64}},
		{Name: "Avg(3)", Values: []float64{62, 66, 71, 72, 70}},
	}, 12, 4)
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "Heart Rate" {
		t.Fatalf("expected title, got %q", lines[0])
	}
	if len(lines) != 1+4+1 {
		t.Fatalf("expected 6 lines, got %d: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[1], " 81 │ ") || !strings.HasPrefix(lines[4], " 62 │ ") {
		t.Fatalf("expected shared bpm axis, got %q and %q", lines[1], lines[4])
	}
	if !strings.HasPrefix(lines[5], "Legend: BPM (solid)  Avg(3) (dotted)") {
		t.Fatalf("unexpected legend: %q", lines[5])
	}
}

func TestPlotSeriesSkipsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotSeries(&buf, "x", []Series{{Name: "empty"}}, 10, 4); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestPlotWidthFor(t *testing.T) {
	if got := PlotWidthFor(80); got != 80-axisLabelWidth-3 {
		t.Fatalf("unexpected width %d", got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}

func TestResample(t *testing.T) {
	if got := resample([]float64{1, 3}, 3); got[1] != 2 {
		t.Fatalf("expected interpolation, got %v", got)
	}
	if got := resample([]float64{1, 3, 5, 7}, 2); got[0] != 2 || got[1] != 6 {
		t.Fatalf("expected binning, got %v", got)
	}
}
