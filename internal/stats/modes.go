package stats

import (
	"sort"

	"github.com/verte-zerg/pulse/internal/model"
)

// ModeStat aggregates records produced by one mode.
type ModeStat struct {
	Mode    model.Mode
	Count   int
	Average int
}

// ModeBreakdown groups records by mode, most used first.
func ModeBreakdown(records []model.HeartRateRecord) []ModeStat {
	if len(records) == 0 {
		return nil
	}
	sums := map[model.Mode]int{}
	counts := map[model.Mode]int{}
	for _, rec := range records {
		sums[rec.Mode] += rec.BPM
		counts[rec.Mode]++
	}
	out := make([]ModeStat, 0, len(counts))
	for mode, n := range counts {
		out = append(out, ModeStat{Mode: mode, Count: n, Average: sums[mode] / n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Mode < out[j].Mode
		}
		return out[i].Count > out[j].Count
	})
	return out
}
