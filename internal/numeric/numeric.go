// Package numeric reads amounts out of noisy extracted values and compares
// them with a relative tolerance.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-metrics/internal/jsonval"
)

var one = decimal.NewFromInt(1)

// DefaultTolerance is the 1% relative tolerance used for near@1pct.
func DefaultTolerance() decimal.Decimal {
	return decimal.New(1, -2)
}

// Normalize extracts an amount from v. Currency symbols, thousands separators
// and whitespace are dropped; ok is false when nothing parseable remains.
func Normalize(v jsonval.Value) (decimal.Decimal, bool) {
	return NormalizeText(v.Text())
}

// NormalizeText keeps only digits, '.' and '-' from s, in order, and parses
// the result. Malformed leftovers such as "1.2.3" or "5-" are not ok.
func NormalizeText(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Near reports whether a is within tolerance of the reference b:
// |a-b| <= tolerance * max(1, |b|). Either side failing to normalize is false.
func Near(a, b jsonval.Value, tolerance decimal.Decimal) bool {
	na, ok := Normalize(a)
	if !ok {
		return false
	}
	nb, ok := Normalize(b)
	if !ok {
		return false
	}

	limit := tolerance.Mul(decimal.Max(one, nb.Abs()))
	return na.Sub(nb).Abs().LessThanOrEqual(limit)
}

// APE is the absolute percentage error of a against the reference b. ok is
// false when either side fails to normalize or b is zero.
func APE(a, b jsonval.Value) (float64, bool) {
	na, ok := Normalize(a)
	if !ok {
		return 0, false
	}
	nb, ok := Normalize(b)
	if !ok || nb.IsZero() {
		return 0, false
	}

	ape, _ := na.Sub(nb).Abs().Div(nb.Abs()).Float64()
	return ape, true
}
