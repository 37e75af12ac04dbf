package historyui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/pulse/internal/model"
)

type memStore struct {
	records []model.HeartRateRecord
}

func (s *memStore) ListRecords(_ context.Context, filter model.RecordFilter) ([]model.HeartRateRecord, error) {
	var out []model.HeartRateRecord
	for _, rec := range s.records {
		if filter.Mode != "" && rec.Mode != filter.Mode {
			continue
		}
		out = append(out, rec)
	}
	if filter.Last > 0 && len(out) > filter.Last {
		out = out[len(out)-filter.Last:]
	}
	return out, nil
}

func (s *memStore) DeleteRecords(_ context.Context, ids ...string) (int64, error) {
	var n int64
	kept := s.records[:0]
	for _, rec := range s.records {
		drop := false
		for _, id := range ids {
			if rec.ID == id {
				drop = true
			}
		}
		if drop {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return n, nil
}

func newStore() *memStore {
	base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)
	return &memStore{records: []model.HeartRateRecord{
		{ID: "first-record", BPM: 60, RecordedAt: base, Mode: model.ModeTap},
		{ID: "second-record", BPM: 80, RecordedAt: base.Add(time.Hour), Mode: model.ModeCamera},
		{ID: "third-record", BPM: 70, RecordedAt: base.Add(2 * time.Hour), Mode: model.ModeTap},
	}}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestOverviewShowsSummary(t *testing.T) {
	m := NewModel(newStore(), model.HistoryConfig{CurveWindow: 1})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	view := m.View()
	for _, want := range []string{"Sessions", "3", "Average", "70 bpm", "Highest", "80 bpm"} {
		if !strings.Contains(view, want) {
			t.Fatalf("overview missing %q:\n%s", want, view)
		}
	}
}

func TestDeleteSelectedRecord(t *testing.T) {
	st := newStore()
	m := NewModel(st, model.HistoryConfig{CurveWindow: 1})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.activeTab != tabRecords {
		t.Fatalf("expected records tab, got %d", m.activeTab)
	}
	m.Update(runes("d"))
	if m.confirmDelete != "third-record" {
		t.Fatalf("expected newest record selected, got %q", m.confirmDelete)
	}
	m.Update(runes("y"))
	if len(st.records) != 2 {
		t.Fatalf("expected record deleted, got %d left", len(st.records))
	}
	if m.report.Summary.Count != 2 || !strings.Contains(m.notice, "Deleted 1") {
		t.Fatalf("expected refreshed report, got count=%d notice=%q", m.report.Summary.Count, m.notice)
	}
}

func TestDeleteCancelled(t *testing.T) {
	st := newStore()
	m := NewModel(st, model.HistoryConfig{CurveWindow: 1})
	m.moveTab(1)
	m.Update(runes("d"))
	m.Update(runes("n"))
	if len(st.records) != 3 || m.confirmDelete != "" {
		t.Fatalf("expected nothing deleted")
	}
}

func TestApplyFilter(t *testing.T) {
	m := NewModel(newStore(), model.HistoryConfig{CurveWindow: 1})
	m.startFilter()
	m.filterInputs[0].SetValue("tap")
	m.filterInputs[3].SetValue("2")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.filterMode {
		t.Fatalf("expected filter to apply: %s", m.filterError)
	}
	if m.cfg.Filter.Mode != model.ModeTap || m.cfg.CurveWindow != 2 {
		t.Fatalf("unexpected config %+v", m.cfg)
	}
	if m.report.Summary.Count != 2 || m.report.Summary.Average != 65 {
		t.Fatalf("unexpected summary %+v", m.report.Summary)
	}
}

func TestApplyFilterRejectsBadInput(t *testing.T) {
	m := NewModel(newStore(), model.HistoryConfig{CurveWindow: 1})
	m.startFilter()
	m.filterInputs[0].SetValue("pigeon")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.filterMode || m.filterError == "" {
		t.Fatalf("expected filter error")
	}
}

func TestCurveWindowSteps(t *testing.T) {
	if nextCurveWindow(1) != 5 || nextCurveWindow(7) != 10 || prevCurveWindow(10) != 5 || prevCurveWindow(3) != 1 {
		t.Fatalf("unexpected window steps")
	}
}
