package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/store"
)

func TestBuildReport(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	bpms := []int{64, 70, 90, 76}
	modes := []model.Mode{model.ModeTap, model.ModeCamera, model.ModeTap, model.ModeTap}
	for i, bpm := range bpms {
		rec := model.HeartRateRecord{
			ID:         string(rune('a' + i)),
			BPM:        bpm,
			RecordedAt: base.Add(time.Duration(i) * time.Hour),
			Mode:       modes[i],
		}
		if err := st.Save(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	report, err := BuildReport(ctx, st, model.HistoryConfig{Filter: model.RecordFilter{Last: 3}, CurveWindow: 2})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if len(report.Records) != 3 || report.Records[0].ID != "b" {
		t.Fatalf("unexpected records: %+v", report.Records)
	}
	s := report.Summary
	// (70+90+76)/3 = 78
	if s.Count != 3 || s.Average != 78 || s.Min != 70 || s.Max != 90 || s.Last != 76 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if len(report.Modes) != 2 || report.Modes[0].Mode != model.ModeTap || report.Modes[0].Average != 83 {
		t.Fatalf("unexpected modes: %+v", report.Modes)
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, 60, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Sessions: 3", "Average: 78 bpm", "Heart Rate", "By Mode", "Measurements"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := (Report{}).Render(&buf, 80, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No measurements found." {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{60, 80, 70, 90}, 2)
	want := []float64{60, 70, 75, 80}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRecordRowsNewestFirst(t *testing.T) {
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	rows := RecordRows([]model.HeartRateRecord{
		{ID: "0b6f3c1e-7a52", BPM: 60, RecordedAt: base, Mode: model.ModeTap},
		{ID: "short", BPM: 80, RecordedAt: base.Add(time.Minute), Mode: model.ModeStrap},
	})
	if rows[0][1] != "80" || rows[0][3] != "short" || rows[1][3] != "0b6f3c1e-7a52" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestSparklineFlat(t *testing.T) {
	if got := Sparkline([]float64{70, 70, 70}); got != "+++" {
		t.Fatalf("unexpected sparkline %q", got)
	}
}
