// Package report turns an aggregate and its case rows into persisted and
// human-facing artifacts.
package report

import (
	"sort"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

// FieldCount is one line of a fill or fix ranking.
type FieldCount struct {
	Field string
	Count int
	// Share is Count over the number of scored cases, 0 when nothing was
	// scored.
	Share float64
}

// RankFields orders fields by descending count. Ties keep the order of
// fields. Fields missing from counts rank with a count of zero.
func RankFields(counts models.FieldCounts, fields []string, scored int) []FieldCount {
	out := make([]FieldCount, 0, len(fields))
	for _, f := range fields {
		fc := FieldCount{Field: f, Count: counts[f]}
		if scored > 0 {
			fc.Share = float64(fc.Count) / float64(scored)
		}
		out = append(out, fc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// clamp01 limits a fraction to [0, 1].
func clamp01(f float64) float64 {
	switch {
	case f != f, f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// percent truncates a fraction to a whole percentage.
func percent(f float64) int {
	return int(clamp01(f) * 100)
}
