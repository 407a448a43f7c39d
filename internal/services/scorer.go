package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/aggregate"
	"github.com/facturaIA/invoice-metrics/internal/compare"
	"github.com/facturaIA/invoice-metrics/internal/config"
	"github.com/facturaIA/invoice-metrics/internal/db"
	"github.com/facturaIA/invoice-metrics/internal/models"
	"github.com/facturaIA/invoice-metrics/internal/report"
	"github.com/facturaIA/invoice-metrics/internal/source"
)

// NewComparator builds a comparator from the scoring settings.
func NewComparator(cfg config.ScoringConfig) (*compare.Comparator, error) {
	cc := compare.DefaultConfig()
	if cfg.Tolerance != "" {
		tol, err := decimal.NewFromString(cfg.Tolerance)
		if err != nil {
			return nil, eris.Wrapf(err, "services: invalid tolerance %q", cfg.Tolerance)
		}
		if tol.IsNegative() {
			return nil, eris.Errorf("services: tolerance %s must not be negative", tol)
		}
		cc.Tolerance = tol
	}
	return compare.New(cc), nil
}

// Scorer runs the daily scoring job.
type Scorer struct {
	cmp    *compare.Comparator
	pool   db.Pool
	schema string
	html   report.HTMLOptions
}

// NewScorer returns a Scorer. pool may be nil when no history is kept.
func NewScorer(cmp *compare.Comparator, pool db.Pool, schema string, html report.HTMLOptions) *Scorer {
	if len(html.Fields) == 0 {
		html.Fields = cmp.Fields()
	}
	return &Scorer{cmp: cmp, pool: pool, schema: schema, html: html}
}

// ScoreRequest describes one run.
type ScoreRequest struct {
	Partition Partition
	Source    source.Source

	// Sink receives the artifacts under MetricsPrefix; nil skips writing.
	Sink          report.Sink
	MetricsPrefix string

	Limit          int
	CollectSamples bool
	SampleLimit    int
	BaselineFlat   bool
	LiftBaseline   bool

	// SaveDB also records the run in Postgres. Requires a pool.
	SaveDB bool
}

// ScoreResult is the outcome of a run.
type ScoreResult struct {
	aggregate.Result

	RunID    uuid.UUID
	Source   string
	Written  []string
	Stored   bool
	Duration time.Duration
}

// Run scores the request's corpus. When the source fails the partial result is
// returned with the error and nothing is persisted. Nothing is persisted either
// when no case was scored.
func (s *Scorer) Run(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	if req.Source == nil {
		return ScoreResult{}, eris.New("services: score: no source")
	}
	if req.SaveDB && s.pool == nil {
		return ScoreResult{}, db.ErrNoDatabase
	}

	start := time.Now()
	date := req.Partition.String()
	out := ScoreResult{RunID: uuid.New(), Source: req.Source.Describe()}
	log := zap.L().With(
		zap.String("run_id", out.RunID.String()),
		zap.String("date", date),
		zap.String("source", out.Source),
	)
	log.Info("score: starting run")

	agg := aggregate.New(s.cmp, aggregate.Options{
		MaxCases:       req.Limit,
		CollectSamples: req.CollectSamples,
		SampleLimit:    req.SampleLimit,
		BaselineFlat:   req.BaselineFlat,
		LiftBaseline:   req.LiftBaseline,
	})
	res, err := agg.Run(ctx, date, source.Cases(ctx, req.Source))
	out.Result = res
	out.Duration = time.Since(start)
	if err != nil {
		return out, eris.Wrapf(err, "services: score %s", date)
	}

	log.Info("score: fold complete",
		zap.Int("scored", res.Report.CountScored),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", out.Duration),
	)

	if res.Report.CountScored == 0 {
		log.Warn("score: no cases scored, artifacts not written")
		return out, nil
	}

	if req.Sink != nil {
		bundle, err := report.Build(req.MetricsPrefix, res.Report, res.Rows, s.html)
		if err != nil {
			return out, err
		}
		written, err := report.Write(ctx, req.Sink, bundle)
		if err != nil {
			return out, err
		}
		out.Written = written
		for _, loc := range written {
			log.Info("score: wrote artifact", zap.String("location", loc))
		}
	}

	if req.SaveDB {
		if err := s.store(ctx, out.RunID, out.Source, res); err != nil {
			return out, err
		}
		out.Stored = true
		log.Info("score: run recorded", zap.Int("rows", len(res.Rows)))
	}
	return out, nil
}

func (s *Scorer) store(ctx context.Context, runID uuid.UUID, src string, res aggregate.Result) error {
	if err := db.Migrate(ctx, s.pool, s.schema); err != nil {
		return err
	}
	_, err := db.SaveRun(ctx, s.pool, s.schema, runID, src, res.Report, res.Rows)
	return err
}

// ArtifactStore reads and writes artifacts.
type ArtifactStore interface {
	report.Fetcher
	report.Sink
}

// RenderReport rebuilds report.html under prefix from the aggregate and rows
// persisted there, returning the written location.
func RenderReport(ctx context.Context, store ArtifactStore, prefix string, opts report.HTMLOptions) (string, models.AggregateReport, error) {
	r, rows, err := report.Load(ctx, store, prefix)
	if err != nil {
		return "", models.AggregateReport{}, err
	}
	page, err := report.RenderHTML(r, rows, opts)
	if err != nil {
		return "", r, err
	}
	key := report.KeysFor(prefix).Report
	loc, err := store.PutObject(ctx, key, page, "text/html; charset=utf-8")
	if err != nil {
		return "", r, eris.Wrapf(err, "services: write %s", key)
	}
	zap.L().Info("render: wrote report", zap.String("location", loc), zap.String("date", r.Date))
	return loc, r, nil
}
