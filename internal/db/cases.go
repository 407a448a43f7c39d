package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/facturaIA/invoice-metrics/internal/models"
)

var caseColumns = []string{
	"metric_date", "position", "run_id", "identifier", "invoice_id",
	"coverage_baseline", "coverage_model", "coverage_delta",
	"sum_matches_total", "near1pct_total", "near1pct_tax",
}

func parseDay(date string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "db: invalid date %q", date)
	}
	return day, nil
}

// ReplaceCaseScores swaps the stored rows of date for rows in one
// transaction and returns the number of rows written.
func ReplaceCaseScores(ctx context.Context, pool Pool, schema, date string, runID uuid.UUID, rows []models.CaseRow) (int64, error) {
	if _, err := parseDay(date); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: cases: begin tx")
	}
	defer tx.Rollback(ctx)

	n, err := replaceCases(ctx, tx, schema, date, runID, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: cases: commit tx")
	}
	return n, nil
}

// SaveRun records a scoring run for r.Date: the daily aggregate and its case
// rows are replaced together or not at all.
func SaveRun(ctx context.Context, pool Pool, schema string, runID uuid.UUID, source string, r models.AggregateReport, rows []models.CaseRow) (int64, error) {
	if _, err := parseDay(r.Date); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: run: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := SaveDailyAggregate(ctx, tx, schema, runID, source, r); err != nil {
		return 0, err
	}
	n, err := replaceCases(ctx, tx, schema, r.Date, runID, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: run: commit tx")
	}
	return n, nil
}

func replaceCases(ctx context.Context, tx pgx.Tx, schema, date string, runID uuid.UUID, rows []models.CaseRow) (int64, error) {
	day, err := parseDay(date)
	if err != nil {
		return 0, err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE metric_date = $1::date", table(schema, casesTable))
	if _, err := tx.Exec(ctx, del, date); err != nil {
		return 0, eris.Wrapf(err, "db: cases: clear %s", date)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	src := make([][]any, 0, len(rows))
	for i, r := range rows {
		src = append(src, []any{
			day, i, runID, r.Identifier, models.InvoiceID(r.Identifier),
			r.CoverageBaseline, r.CoverageModel, r.CoverageDelta,
			r.SumMatchesTotal, r.Near1PctTotal, r.Near1PctTax,
		})
	}
	n, err := tx.CopyFrom(ctx, identifier(schema, casesTable), caseColumns, pgx.CopyFromRows(src))
	if err != nil {
		return 0, eris.Wrapf(err, "db: cases: COPY INTO %s", casesTable)
	}
	return n, nil
}

// GetCaseScores returns the stored rows of date in scoring order.
func GetCaseScores(ctx context.Context, pool Pool, schema, date string) ([]models.CaseRow, error) {
	query := fmt.Sprintf(`
		SELECT identifier, coverage_baseline, coverage_model, coverage_delta,
		       sum_matches_total, near1pct_total, near1pct_tax
		FROM %s
		WHERE metric_date = $1::date
		ORDER BY position
	`, table(schema, casesTable))

	rows, err := pool.Query(ctx, query, date)
	if err != nil {
		return nil, eris.Wrapf(err, "db: get cases %s", date)
	}
	defer rows.Close()

	out := []models.CaseRow{}
	for rows.Next() {
		var r models.CaseRow
		if err := rows.Scan(
			&r.Identifier, &r.CoverageBaseline, &r.CoverageModel, &r.CoverageDelta,
			&r.SumMatchesTotal, &r.Near1PctTotal, &r.Near1PctTax,
		); err != nil {
			return nil, eris.Wrap(err, "db: scan case")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "db: get cases %s", date)
	}
	return out, nil
}
