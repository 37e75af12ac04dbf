package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/pulse/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "pulse.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st *Store) time.Time {
	t.Helper()
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	recs := []model.HeartRateRecord{
		{ID: "a", BPM: 60, RecordedAt: base, Mode: model.ModeTap},
		{ID: "b", BPM: 75, RecordedAt: base.Add(time.Hour), Mode: model.ModeCamera},
		{ID: "c", BPM: 82, RecordedAt: base.Add(2 * time.Hour), Mode: model.ModeTap},
		{ID: "d", BPM: 71, RecordedAt: base.Add(3 * time.Hour), Mode: model.ModeStrap},
	}
	for _, rec := range recs {
		if err := st.Save(context.Background(), rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}
	return base
}

func ids(recs []model.HeartRateRecord) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.ID
	}
	return out
}

func TestListRecordsOldestFirst(t *testing.T) {
	st := openTemp(t)
	base := seed(t, st)

	recs, err := st.ListRecords(context.Background(), model.RecordFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(recs); len(got) != 4 || got[0] != "a" || got[3] != "d" {
		t.Fatalf("unexpected order: %v", got)
	}
	if !recs[1].RecordedAt.Equal(base.Add(time.Hour)) || recs[1].Mode != model.ModeCamera || recs[1].BPM != 75 {
		t.Fatalf("unexpected record: %+v", recs[1])
	}
}

func TestListRecordsFilters(t *testing.T) {
	st := openTemp(t)
	base := seed(t, st)
	ctx := context.Background()

	tap, err := st.ListRecords(ctx, model.RecordFilter{Mode: model.ModeTap})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(tap); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("unexpected tap records: %v", got)
	}

	since := base.Add(90 * time.Minute)
	recent, err := st.ListRecords(ctx, model.RecordFilter{Since: &since})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(recent); len(got) != 2 || got[0] != "c" {
		t.Fatalf("unexpected recent records: %v", got)
	}

	last, err := st.ListRecords(ctx, model.RecordFilter{Last: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(last); len(got) != 3 || got[0] != "b" || got[2] != "d" {
		t.Fatalf("unexpected last records: %v", got)
	}
}

func TestAverage(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	avg, count, err := st.Average(ctx, model.RecordFilter{})
	if err != nil || avg != 0 || count != 0 {
		t.Fatalf("expected empty average, got %d %d %v", avg, count, err)
	}

	seed(t, st)
	avg, count, err = st.Average(ctx, model.RecordFilter{})
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	// (60+75+82+71)/4 = 72
	if avg != 72 || count != 4 {
		t.Fatalf("expected 72 over 4, got %d over %d", avg, count)
	}
	avg, _, err = st.Average(ctx, model.RecordFilter{Mode: model.ModeTap})
	if err != nil || avg != 71 {
		t.Fatalf("expected tap average 71, got %d (%v)", avg, err)
	}
}

func TestDeleteRecords(t *testing.T) {
	st := openTemp(t)
	seed(t, st)
	ctx := context.Background()

	n, err := st.DeleteRecords(ctx, "a", "c", "missing")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	recs, err := st.ListRecords(ctx, model.RecordFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(recs); len(got) != 2 || got[0] != "b" || got[1] != "d" {
		t.Fatalf("unexpected remaining records: %v", got)
	}
	if n, err := st.DeleteRecords(ctx); err != nil || n != 0 {
		t.Fatalf("expected no-op delete, got %d %v", n, err)
	}
}

func TestSaveRejectsDuplicateAndEmptyID(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	rec := model.HeartRateRecord{ID: "x", BPM: 70, RecordedAt: time.Now(), Mode: model.ModeTap}
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Save(ctx, rec); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
	if err := st.Save(ctx, model.HeartRateRecord{BPM: 70}); err == nil {
		t.Fatalf("expected empty id to fail")
	}
}
