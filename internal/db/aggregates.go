package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

const (
	dailyTable = "invoice_metrics_daily"
	casesTable = "invoice_metrics_cases"
)

// DailyAggregate is a stored aggregate plus the run that produced it.
type DailyAggregate struct {
	RunID    uuid.UUID              `json:"run_id"`
	Source   string                 `json:"source"`
	ScoredAt time.Time              `json:"scored_at"`
	Report   models.AggregateReport `json:"report"`
}

// Migrate creates the metrics tables when missing.
func Migrate(ctx context.Context, pool Pool, schema string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			metric_date           date PRIMARY KEY,
			run_id                uuid NOT NULL,
			source                text NOT NULL DEFAULT '',
			count_scored          integer NOT NULL,
			avg_coverage_delta    double precision NOT NULL,
			pct_sum_matches_total double precision NOT NULL,
			pct_near1pct_total    double precision NOT NULL,
			pct_near1pct_tax      double precision NOT NULL,
			wins_fill_counts      jsonb NOT NULL,
			wins_fix_counts       jsonb NOT NULL,
			scored_at             timestamptz NOT NULL DEFAULT now()
		)`, table(schema, dailyTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			metric_date       date NOT NULL,
			position          integer NOT NULL,
			run_id            uuid NOT NULL,
			identifier        text NOT NULL,
			invoice_id        text NOT NULL,
			coverage_baseline integer NOT NULL,
			coverage_model    integer NOT NULL,
			coverage_delta    integer NOT NULL,
			sum_matches_total boolean NOT NULL,
			near1pct_total    boolean NOT NULL,
			near1pct_tax      boolean NOT NULL,
			PRIMARY KEY (metric_date, position)
		)`, table(schema, casesTable)),
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "db: migrate")
		}
	}
	return nil
}

// SaveDailyAggregate stores r for its date, replacing any earlier run.
func SaveDailyAggregate(ctx context.Context, pool Pool, schema string, runID uuid.UUID, source string, r models.AggregateReport) error {
	fill, err := json.Marshal(r.WinsFillCounts)
	if err != nil {
		return eris.Wrap(err, "db: encode fill counts")
	}
	fix, err := json.Marshal(r.WinsFixCounts)
	if err != nil {
		return eris.Wrap(err, "db: encode fix counts")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			metric_date, run_id, source, count_scored, avg_coverage_delta,
			pct_sum_matches_total, pct_near1pct_total, pct_near1pct_tax,
			wins_fill_counts, wins_fix_counts, scored_at
		) VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, now())
		ON CONFLICT (metric_date) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			source = EXCLUDED.source,
			count_scored = EXCLUDED.count_scored,
			avg_coverage_delta = EXCLUDED.avg_coverage_delta,
			pct_sum_matches_total = EXCLUDED.pct_sum_matches_total,
			pct_near1pct_total = EXCLUDED.pct_near1pct_total,
			pct_near1pct_tax = EXCLUDED.pct_near1pct_tax,
			wins_fill_counts = EXCLUDED.wins_fill_counts,
			wins_fix_counts = EXCLUDED.wins_fix_counts,
			scored_at = EXCLUDED.scored_at
	`, table(schema, dailyTable))

	_, err = pool.Exec(ctx, query,
		r.Date, runID.String(), source, r.CountScored, r.AvgCoverageDelta,
		r.PctSumMatchesTotal, r.PctNear1PctTotal, r.PctNear1PctTax,
		string(fill), string(fix),
	)
	if err != nil {
		return eris.Wrapf(err, "db: save aggregate %s", r.Date)
	}
	return nil
}

const dailyColumns = `metric_date::text, run_id::text, source, count_scored, avg_coverage_delta,
	pct_sum_matches_total, pct_near1pct_total, pct_near1pct_tax,
	wins_fill_counts::text, wins_fix_counts::text, scored_at`

func scanDaily(row pgx.Row) (DailyAggregate, error) {
	var (
		d         DailyAggregate
		runID     string
		fill, fix string
	)
	err := row.Scan(
		&d.Report.Date, &runID, &d.Source, &d.Report.CountScored, &d.Report.AvgCoverageDelta,
		&d.Report.PctSumMatchesTotal, &d.Report.PctNear1PctTotal, &d.Report.PctNear1PctTax,
		&fill, &fix, &d.ScoredAt,
	)
	if err != nil {
		return d, err
	}
	if d.RunID, err = uuid.Parse(runID); err != nil {
		return d, eris.Wrapf(err, "db: parse run id %q", runID)
	}
	if err := json.Unmarshal([]byte(fill), &d.Report.WinsFillCounts); err != nil {
		return d, eris.Wrap(err, "db: decode fill counts")
	}
	if err := json.Unmarshal([]byte(fix), &d.Report.WinsFixCounts); err != nil {
		return d, eris.Wrap(err, "db: decode fix counts")
	}
	return d, nil
}

// GetDailyAggregate loads the aggregate stored for date.
func GetDailyAggregate(ctx context.Context, pool Pool, schema, date string) (*DailyAggregate, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE metric_date = $1::date`, dailyColumns, table(schema, dailyTable))

	d, err := scanDaily(pool.QueryRow(ctx, query, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "db: aggregate %s", date)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "db: get aggregate %s", date)
	}
	return &d, nil
}

// ListDailyAggregates returns the most recent aggregates first. Empty bounds
// are open.
func ListDailyAggregates(ctx context.Context, pool Pool, schema, from, to string, limit int) ([]DailyAggregate, error) {
	if limit <= 0 {
		limit = 30
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1 = '' OR metric_date >= NULLIF($1, '')::date)
		  AND ($2 = '' OR metric_date <= NULLIF($2, '')::date)
		ORDER BY metric_date DESC
		LIMIT $3
	`, dailyColumns, table(schema, dailyTable))

	rows, err := pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, eris.Wrap(err, "db: list aggregates")
	}
	defer rows.Close()

	out := []DailyAggregate{}
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, eris.Wrap(err, "db: scan aggregate")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "db: list aggregates")
	}
	return out, nil
}
