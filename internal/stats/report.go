package stats

import (
	"context"
	"io"

	"github.com/verte-zerg/pulse/internal/model"
)

// RecordLister is the history query the report needs.
type RecordLister interface {
	ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.HeartRateRecord, error)
}

// Report contains precomputed data for history rendering.
type Report struct {
	Records     []model.HeartRateRecord
	Summary     Summary
	Modes       []ModeStat
	CurveWindow int
}

// BuildReport loads and prepares data for history rendering.
func BuildReport(ctx context.Context, st RecordLister, cfg model.HistoryConfig) (Report, error) {
	records, err := st.ListRecords(ctx, cfg.Filter)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Records:     records,
		Summary:     Summarize(records),
		Modes:       ModeBreakdown(records),
		CurveWindow: cfg.CurveWindow,
	}, nil
}

// Render prints the full plain-text report.
func (r Report) Render(w io.Writer, totalWidth int, useColor bool) error {
	if err := RenderSummary(w, r.Summary, r.Records); err != nil {
		return err
	}
	if r.Summary.Count == 0 {
		return nil
	}
	if err := RenderTrendWithSize(w, r.Records, r.CurveWindow, totalWidth, 10, useColor); err != nil {
		return err
	}
	if err := RenderModeTable(w, r.Modes); err != nil {
		return err
	}
	return RenderRecordTable(w, r.Records)
}
