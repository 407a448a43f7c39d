// Package compare scores one candidate extraction against its baseline.
package compare

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-metrics/internal/jsonval"
	"github.com/facturaIA/invoice-metrics/internal/models"
	"github.com/facturaIA/invoice-metrics/internal/numeric"
)

const (
	pathSumMatchesTotal = "validations.sum_matches_total"
	pathConfidence      = "confidence"
)

// Config selects the fields a Comparator looks at and the amount tolerance.
type Config struct {
	Fields        []string
	NumericFields []string
	Tolerance     decimal.Decimal
}

// DefaultConfig tracks the canonical invoice fields with a 1% tolerance.
func DefaultConfig() Config {
	return Config{
		Fields:        models.CanonicalFields(),
		NumericFields: models.NumericFields(),
		Tolerance:     numeric.DefaultTolerance(),
	}
}

// Comparator turns a baseline/candidate pair into a CaseMetric. It holds no
// state besides its configuration and is safe to share.
type Comparator struct {
	fields        []string
	numericFields []string
	tolerance     decimal.Decimal
}

// New creates a Comparator. Empty field lists fall back to the canonical sets.
func New(cfg Config) *Comparator {
	fields := cfg.Fields
	if len(fields) == 0 {
		fields = models.CanonicalFields()
	}
	numericFields := cfg.NumericFields
	if len(numericFields) == 0 {
		numericFields = models.NumericFields()
	}
	return &Comparator{
		fields:        append([]string(nil), fields...),
		numericFields: append([]string(nil), numericFields...),
		tolerance:     cfg.Tolerance,
	}
}

// Fields returns the compared fields in display order.
func (c *Comparator) Fields() []string {
	return append([]string(nil), c.fields...)
}

// Tolerance returns the relative amount tolerance.
func (c *Comparator) Tolerance() decimal.Decimal {
	return c.tolerance
}

// Compare scores candidate against baseline. Both are addressed by canonical
// paths. The result depends only on the two inputs.
func (c *Comparator) Compare(baseline, candidate jsonval.Value) models.CaseMetric {
	m := models.CaseMetric{
		WinsFill: make(map[string]bool, len(c.fields)),
		WinsFix:  make(map[string]bool, len(c.fields)),
		Numeric:  make(map[string]models.NumericComparison, len(c.numericFields)),
	}

	for _, f := range c.fields {
		vb := baseline.Path(f)
		vo := candidate.Path(f)
		hasB := jsonval.Present(vb)
		hasO := jsonval.Present(vo)

		if hasB {
			m.CoverageBaseline++
		}
		if hasO {
			m.CoverageModel++
		}
		m.WinsFill[f] = !hasB && hasO
		// absence on either side is never a fix
		m.WinsFix[f] = hasB && hasO && strings.TrimSpace(vb.Text()) != strings.TrimSpace(vo.Text())
	}
	m.CoverageDelta = m.CoverageModel - m.CoverageBaseline

	for _, f := range c.numericFields {
		vb := baseline.Path(f)
		vo := candidate.Path(f)
		nc := models.NumericComparison{
			Baseline: vb,
			Model:    vo,
			Near:     numeric.Near(vo, vb, c.tolerance),
		}
		if ape, ok := numeric.APE(vo, vb); ok {
			nc.APE = &ape
		}
		m.Numeric[f] = nc
	}

	m.SumMatchesTotal = flagSet(candidate.Path(pathSumMatchesTotal))
	m.Confidence = candidate.Path(pathConfidence)
	if empty(m.Confidence) {
		m.Confidence = jsonval.ObjectOf()
	}
	return m
}

// flagSet reads a self-reported boolean. Producers sometimes emit the flag as
// a string or a 0/1 number. Only affirmative values count: the string "false"
// and containers of any size are false, unlike plain truthiness.
func flagSet(v jsonval.Value) bool {
	switch v.Kind() {
	case jsonval.Bool:
		b, _ := v.Bool()
		return b
	case jsonval.String:
		switch strings.ToLower(strings.TrimSpace(v.Text())) {
		case "true", "1", "yes", "y":
			return true
		}
	case jsonval.Number:
		d, ok := numeric.Normalize(v)
		return ok && !d.IsZero()
	}
	return false
}

// empty reports whether v carries nothing: null, false, zero, "" or an empty
// container.
func empty(v jsonval.Value) bool {
	switch v.Kind() {
	case jsonval.Null:
		return true
	case jsonval.Bool:
		b, _ := v.Bool()
		return !b
	case jsonval.String, jsonval.Object, jsonval.Array:
		return v.Len() == 0
	case jsonval.Number:
		d, ok := numeric.Normalize(v)
		return ok && d.IsZero()
	}
	return false
}
