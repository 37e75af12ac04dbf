// Package stats contains history summaries and text reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/verte-zerg/pulse/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Summary condenses a set of records.
type Summary struct {
	Count   int
	Average int
	Min     int
	Max     int
	Last    int
	LastAt  time.Time
	FirstAt time.Time
}

// Summarize computes the summary of records ordered oldest first. Average is the
// integer mean sum/count.
func Summarize(records []model.HeartRateRecord) Summary {
	if len(records) == 0 {
		return Summary{}
	}
	s := Summary{
		Count:   len(records),
		Min:     records[0].BPM,
		Max:     records[0].BPM,
		FirstAt: records[0].RecordedAt,
	}
	sum := 0
	for _, rec := range records {
		sum += rec.BPM
		if rec.BPM < s.Min {
			s.Min = rec.BPM
		}
		if rec.BPM > s.Max {
			s.Max = rec.BPM
		}
	}
	last := records[len(records)-1]
	s.Average = sum / len(records)
	s.Last = last.BPM
	s.LastAt = last.RecordedAt
	return s
}

// BPMValues extracts the BPM series from records.
func BPMValues(records []model.HeartRateRecord) []float64 {
	out := make([]float64, len(records))
	for i, rec := range records {
		out[i] = float64(rec.BPM)
	}
	return out
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(min(i+1, window))
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints the overview block.
func RenderSummary(w io.Writer, s Summary, records []model.HeartRateRecord) error {
	if s.Count == 0 {
		_, err := fmt.Fprintln(w, "No measurements found.")
		return err
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", s.Count),
		fmt.Sprintf("Average: %d bpm", s.Average),
		fmt.Sprintf("Range: %d-%d bpm", s.Min, s.Max),
		fmt.Sprintf("Last: %d bpm (%s)", s.Last, s.LastAt.Local().Format("2006-01-02 15:04")),
		fmt.Sprintf("Trend: %s", Sparkline(BPMValues(records))),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderTrend prints the BPM history with its moving average.
func RenderTrend(w io.Writer, records []model.HeartRateRecord, window int) error {
	return RenderTrendWithSize(w, records, window, 0, 10, false)
}

// RenderTrendWithSize prints the BPM trend sized to a given total width.
func RenderTrendWithSize(w io.Writer, records []model.HeartRateRecord, window, totalWidth, height int, useColor bool) error {
	if len(records) == 0 {
		return nil
	}
	values := BPMValues(records)
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeriesWithColor(w, "Heart Rate", []Series{
		{Name: "BPM", Values: values},
		{Name: fmt.Sprintf("Avg(%d)", max(window, 1)), Values: MovingAverage(values, window)},
	}, width, height, useColor)
}

// RecordRows formats records newest first as table rows.
func RecordRows(records []model.HeartRateRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		rows = append(rows, []string{
			rec.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", rec.BPM),
			string(rec.Mode),
			rec.ID,
		})
	}
	return rows
}

// RecordHeaders are the column titles for RecordRows.
var RecordHeaders = []string{"Recorded", "BPM", "Mode", "ID"}

// RenderRecordTable prints records newest first.
func RenderRecordTable(w io.Writer, records []model.HeartRateRecord) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Measurements"); err != nil {
		return err
	}
	for _, line := range formatTable(RecordHeaders, RecordRows(records), map[int]bool{1: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderModeTable prints per-mode counts and averages.
func RenderModeTable(w io.Writer, modes []ModeStat) error {
	if len(modes) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "By Mode"); err != nil {
		return err
	}
	rows := make([][]string, 0, len(modes))
	for _, m := range modes {
		rows = append(rows, []string{string(m.Mode), fmt.Sprintf("%d", m.Count), fmt.Sprintf("%d", m.Average)})
	}
	for _, line := range formatTable([]string{"Mode", "Sessions", "Avg BPM"}, rows, map[int]bool{1: true, 2: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
