package models

import "github.com/facturaIA/invoice-metrics/internal/jsonval"

// NumericComparison is the amount check for one numeric field.
type NumericComparison struct {
	Baseline jsonval.Value `json:"baseline"`
	Model    jsonval.Value `json:"model"`
	Near     bool          `json:"near@1pct"`
	APE      *float64      `json:"ape_vs_baseline"`
}

// CaseMetric is the comparison result for one document. It is built once by
// the comparator and not modified afterwards.
type CaseMetric struct {
	CoverageBaseline int                          `json:"coverage_baseline"`
	CoverageModel    int                          `json:"coverage_model"`
	CoverageDelta    int                          `json:"coverage_delta"`
	WinsFill         map[string]bool              `json:"wins_fill"`
	WinsFix          map[string]bool              `json:"wins_fix"`
	Numeric          map[string]NumericComparison `json:"numeric"`
	SumMatchesTotal  bool                         `json:"sum_matches_total"`
	Confidence       jsonval.Value                `json:"confidence"`
}

// NearFor reports the near@1pct flag of a numeric field, false when the field
// was not compared.
func (m CaseMetric) NearFor(field string) bool {
	return m.Numeric[field].Near
}

// FieldCounts counts events per canonical field.
type FieldCounts map[string]int

// NewFieldCounts returns counts seeded with zero for every field.
func NewFieldCounts(fields []string) FieldCounts {
	c := make(FieldCounts, len(fields))
	for _, f := range fields {
		c[f] = 0
	}
	return c
}

// Clone returns an independent copy.
func (c FieldCounts) Clone() FieldCounts {
	out := make(FieldCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// AggregateReport summarizes one date partition. It is recomputed from
// scratch on every run and overwrites the previous document.
type AggregateReport struct {
	Date               string      `json:"date"`
	CountScored        int         `json:"count_scored"`
	AvgCoverageDelta   float64     `json:"avg_coverage_delta"`
	PctSumMatchesTotal float64     `json:"pct_sum_matches_total"`
	PctNear1PctTotal   float64     `json:"pct_near1pct_total"`
	PctNear1PctTax     float64     `json:"pct_near1pct_tax"`
	WinsFillCounts     FieldCounts `json:"wins_fill_counts"`
	WinsFixCounts      FieldCounts `json:"wins_fix_counts"`
}

// CaseRow is one line of the per-case table. Field order is the column order.
type CaseRow struct {
	Identifier       string `json:"identifier" csv:"identifier"`
	CoverageBaseline int    `json:"coverage_baseline" csv:"coverage_baseline"`
	CoverageModel    int    `json:"coverage_model" csv:"coverage_model"`
	CoverageDelta    int    `json:"coverage_delta" csv:"coverage_delta"`
	SumMatchesTotal  bool   `json:"sum_matches_total" csv:"sum_matches_total"`
	Near1PctTotal    bool   `json:"near1pct_total" csv:"near1pct_total"`
	Near1PctTax      bool   `json:"near1pct_tax" csv:"near1pct_tax"`
}

// RowColumns is the header of the per-case table.
var RowColumns = []string{
	"identifier",
	"coverage_baseline",
	"coverage_model",
	"coverage_delta",
	"sum_matches_total",
	"near1pct_total",
	"near1pct_tax",
}

// SampleKind tells a fill sample from a fix sample.
type SampleKind string

const (
	SampleFill SampleKind = "fill"
	SampleFix  SampleKind = "fix"
)

// Sample is an example baseline -> model change kept for human review.
type Sample struct {
	Identifier string        `json:"identifier"`
	Field      string        `json:"field"`
	Kind       SampleKind    `json:"kind"`
	Baseline   jsonval.Value `json:"baseline"`
	Model      jsonval.Value `json:"model"`
}
