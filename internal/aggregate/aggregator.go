// Package aggregate folds per-case comparisons into a daily report.
package aggregate

import (
	"context"
	"iter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/compare"
	"github.com/facturaIA/invoice-metrics/internal/jsonval"
	"github.com/facturaIA/invoice-metrics/internal/models"
)

// DefaultSampleLimit caps each sample list when Options.SampleLimit is unset.
const DefaultSampleLimit = 12

// Options tunes a fold.
type Options struct {
	// MaxCases stops the fold after this many scored cases; 0 means no limit.
	MaxCases int
	// CollectSamples keeps example fill/fix events for review.
	CollectSamples bool
	// SampleLimit caps the fill and the fix list separately.
	SampleLimit int
	// BaselineFlat reads sample baseline values through the flat-key mapping.
	BaselineFlat bool
	// LiftBaseline rewrites flat baselines into canonical form before comparing.
	LiftBaseline bool
}

// Result is a finalized fold.
type Result struct {
	Report  models.AggregateReport
	Rows    []models.CaseRow
	Fills   []models.Sample
	Fixes   []models.Sample
	Skipped int
}

// Aggregator accumulates scored cases. It has a single writer and is not safe
// for concurrent use.
type Aggregator struct {
	cmp    *compare.Comparator
	opts   Options
	fields []string

	n          int
	deltaSum   int
	sumTrue    int
	nearTotal  int
	nearTax    int
	skipped    int
	fillCounts models.FieldCounts
	fixCounts  models.FieldCounts

	rows  []models.CaseRow
	fills []models.Sample
	fixes []models.Sample
}

// New returns an empty Aggregator scoring cases with cmp.
func New(cmp *compare.Comparator, opts Options) *Aggregator {
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = DefaultSampleLimit
	}
	fields := cmp.Fields()
	return &Aggregator{
		cmp:        cmp,
		opts:       opts,
		fields:     fields,
		fillCounts: models.NewFieldCounts(fields),
		fixCounts:  models.NewFieldCounts(fields),
	}
}

// Add folds one case and reports whether it was scored. Cases without a
// candidate are skipped and not counted.
func (a *Aggregator) Add(c models.Case) bool {
	if !c.HasCandidate() {
		a.skipped++
		return false
	}

	baseline := c.Baseline
	if a.opts.LiftBaseline {
		baseline = models.LiftBaseline(baseline)
	}
	m := a.cmp.Compare(baseline, c.Candidate)

	a.n++
	a.deltaSum += m.CoverageDelta
	if m.SumMatchesTotal {
		a.sumTrue++
	}
	nearTotal := m.NearFor(models.FieldTotal)
	nearTax := m.NearFor(models.FieldTax)
	if nearTotal {
		a.nearTotal++
	}
	if nearTax {
		a.nearTax++
	}

	for _, f := range a.fields {
		if m.WinsFill[f] {
			a.fillCounts[f]++
			a.sample(&a.fills, models.SampleFill, c, f)
		}
		if m.WinsFix[f] {
			a.fixCounts[f]++
			a.sample(&a.fixes, models.SampleFix, c, f)
		}
	}

	a.rows = append(a.rows, models.CaseRow{
		Identifier:       c.ID,
		CoverageBaseline: m.CoverageBaseline,
		CoverageModel:    m.CoverageModel,
		CoverageDelta:    m.CoverageDelta,
		SumMatchesTotal:  m.SumMatchesTotal,
		Near1PctTotal:    nearTotal,
		Near1PctTax:      nearTax,
	})
	return true
}

func (a *Aggregator) sample(dst *[]models.Sample, kind models.SampleKind, c models.Case, field string) {
	if !a.opts.CollectSamples || len(*dst) >= a.opts.SampleLimit {
		return
	}
	*dst = append(*dst, models.Sample{
		Identifier: c.ID,
		Field:      field,
		Kind:       kind,
		Baseline:   a.baselineRaw(c.Baseline, field),
		Model:      c.Candidate.Path(field),
	})
}

func (a *Aggregator) baselineRaw(baseline jsonval.Value, field string) jsonval.Value {
	if a.opts.BaselineFlat || a.opts.LiftBaseline {
		return baseline.Path(models.BaselineKey(field))
	}
	return baseline.Path(field)
}

// Scored returns the number of cases counted so far.
func (a *Aggregator) Scored() int { return a.n }

// Done reports whether the case limit has been reached.
func (a *Aggregator) Done() bool {
	return a.opts.MaxCases > 0 && a.n >= a.opts.MaxCases
}

// Result finalizes the running totals for date. It does not reset the
// Aggregator and may be called at any point; a partial fold is well formed.
func (a *Aggregator) Result(date string) Result {
	report := models.AggregateReport{
		Date:           date,
		CountScored:    a.n,
		WinsFillCounts: a.fillCounts.Clone(),
		WinsFixCounts:  a.fixCounts.Clone(),
	}
	if a.n > 0 {
		n := float64(a.n)
		report.AvgCoverageDelta = float64(a.deltaSum) / n
		report.PctSumMatchesTotal = float64(a.sumTrue) / n
		report.PctNear1PctTotal = float64(a.nearTotal) / n
		report.PctNear1PctTax = float64(a.nearTax) / n
	}

	return Result{
		Report:  report,
		Rows:    append([]models.CaseRow{}, a.rows...),
		Fills:   append([]models.Sample{}, a.fills...),
		Fixes:   append([]models.Sample{}, a.fixes...),
		Skipped: a.skipped,
	}
}

// Run folds cases one at a time until the stream ends or the case limit is
// reached; the next case is not requested once the limit is hit. A stream
// error ends the fold and is returned together with the partial result.
func (a *Aggregator) Run(ctx context.Context, date string, cases iter.Seq2[models.Case, error]) (Result, error) {
	log := zap.L().With(zap.String("date", date))

	if a.Done() {
		return a.Result(date), nil
	}
	for c, err := range cases {
		if err != nil {
			log.Warn("aggregate: source failed, returning partial result",
				zap.Int("scored", a.n),
				zap.Int("skipped", a.skipped),
				zap.Error(err),
			)
			return a.Result(date), err
		}
		if err := ctx.Err(); err != nil {
			return a.Result(date), eris.Wrap(err, "aggregate: interrupted")
		}

		if a.Add(c) {
			log.Debug("aggregate: scored case", zap.String("id", c.ID))
		} else {
			log.Debug("aggregate: skipped case without candidate", zap.String("id", c.ID))
		}
		if a.Done() {
			log.Info("aggregate: case limit reached", zap.Int("limit", a.opts.MaxCases))
			break
		}
	}
	return a.Result(date), nil
}
