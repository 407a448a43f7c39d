package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/config"
	"github.com/facturaIA/invoice-metrics/internal/models"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var dailyCols = []string{
	"metric_date", "run_id", "source", "count_scored", "avg_coverage_delta",
	"pct_sum_matches_total", "pct_near1pct_total", "pct_near1pct_tax",
	"wins_fill_counts", "wins_fix_counts", "scored_at",
}

func testReport() models.AggregateReport {
	fill := models.NewFieldCounts(models.CanonicalFields())
	fill["vendor.name"] = 2
	fix := models.NewFieldCounts(models.CanonicalFields())
	fix["totals.total"] = 1
	return models.AggregateReport{
		Date:               "2024-05-01",
		CountScored:        3,
		AvgCoverageDelta:   1.5,
		PctSumMatchesTotal: 0.5,
		PctNear1PctTotal:   1,
		PctNear1PctTax:     0.25,
		WinsFillCounts:     fill,
		WinsFixCounts:      fix,
	}
}

func TestTable(t *testing.T) {
	assert.Equal(t, `"public"."invoice_metrics_daily"`, table("", dailyTable))
	assert.Equal(t, `"metrics"."invoice_metrics_cases"`, table("metrics", casesTable))
	assert.Equal(t, pgx.Identifier{"public", "x"}, identifier("", "x"))
}

func TestConnect_NoDatabase(t *testing.T) {
	_, err := Connect(context.Background(), config.StoreConfig{})
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "public"."invoice_metrics_daily"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "public"."invoice_metrics_cases"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(fmt.Errorf("permission denied"))

	err = Migrate(context.Background(), mock, "public")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: migrate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDailyAggregate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	r := testReport()
	mock.ExpectExec(`INSERT INTO "public"."invoice_metrics_daily"`).
		WithArgs(
			"2024-05-01", runID.String(), "s3://processed/invoices/processed/2024/05/01/", 3, 1.5,
			0.5, 1.0, 0.25,
			`{"invoice.currency":0,"invoice.date_iso":0,"invoice.number":0,"totals.tax":0,"totals.total":0,"vendor.name":2}`,
			`{"invoice.currency":0,"invoice.date_iso":0,"invoice.number":0,"totals.tax":0,"totals.total":1,"vendor.name":0}`,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = SaveDailyAggregate(context.Background(), mock, "public", runID, "s3://processed/invoices/processed/2024/05/01/", r)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDailyAggregate_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("connection lost"))

	err = SaveDailyAggregate(context.Background(), mock, "", uuid.New(), "", testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: save aggregate 2024-05-01")
}

func TestGetDailyAggregate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	scoredAt := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM "public"."invoice_metrics_daily" WHERE metric_date`).
		WithArgs("2024-05-01").
		WillReturnRows(pgxmock.NewRows(dailyCols).AddRow(
			"2024-05-01", runID.String(), "local:///data", 3, 1.5,
			0.5, 1.0, 0.25,
			`{"vendor.name": 2, "invoice.number": 0, "invoice.date_iso": 0, "invoice.currency": 0, "totals.total": 0, "totals.tax": 0}`,
			`{"vendor.name": 0, "invoice.number": 0, "invoice.date_iso": 0, "invoice.currency": 0, "totals.total": 1, "totals.tax": 0}`,
			scoredAt,
		))

	got, err := GetDailyAggregate(context.Background(), mock, "public", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, "local:///data", got.Source)
	assert.Equal(t, scoredAt, got.ScoredAt)
	assert.Equal(t, testReport(), got.Report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDailyAggregate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT").WithArgs("2024-05-09").WillReturnError(pgx.ErrNoRows)

	_, err = GetDailyAggregate(context.Background(), mock, "public", "2024-05-09")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDailyAggregates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	counts := `{"vendor.name": 0}`
	now := time.Now().UTC()
	mock.ExpectQuery("ORDER BY metric_date DESC").
		WithArgs("2024-05-01", "", 30).
		WillReturnRows(pgxmock.NewRows(dailyCols).
			AddRow("2024-05-02", uuid.NewString(), "a", 2, 0.0, 0.0, 0.0, 0.0, counts, counts, now).
			AddRow("2024-05-01", uuid.NewString(), "b", 1, 0.0, 0.0, 0.0, 0.0, counts, counts, now))

	got, err := ListDailyAggregates(context.Background(), mock, "public", "2024-05-01", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-05-02", got[0].Report.Date)
	assert.Equal(t, "b", got[1].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDailyAggregates_BadRunID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows(dailyCols).
			AddRow("2024-05-02", "not-a-uuid", "a", 2, 0.0, 0.0, 0.0, 0.0, "{}", "{}", time.Now()))

	_, err = ListDailyAggregates(context.Background(), mock, "public", "", "", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse run id")
}

func TestReplaceCaseScores(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := []models.CaseRow{
		{Identifier: "invoices/processed/2024/05/01/inv-a/parsed.json", CoverageBaseline: 1, CoverageModel: 3, CoverageDelta: 2, Near1PctTotal: true},
		{Identifier: "invoices/processed/2024/05/01/inv-b/parsed.json", CoverageBaseline: 2, CoverageModel: 2},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "public"."invoice_metrics_cases"`).
		WithArgs("2024-05-01").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"public", casesTable}, caseColumns).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := ReplaceCaseScores(context.Background(), mock, "public", "2024-05-01", uuid.New(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceCaseScores_EmptyOnlyClears(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	n, err := ReplaceCaseScores(context.Background(), mock, "", "2024-05-01", uuid.New(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceCaseScores_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", casesTable}, caseColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = ReplaceCaseScores(context.Background(), mock, "public", "2024-05-01", uuid.New(),
		[]models.CaseRow{{Identifier: "a/parsed.json"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO invoice_metrics_cases")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "public"."invoice_metrics_daily"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM "public"."invoice_metrics_cases"`).
		WithArgs("2024-05-01").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", casesTable}, caseColumns).WillReturnResult(1)
	mock.ExpectCommit()

	n, err := SaveRun(context.Background(), mock, "public", runID, "local:/in", testReport(),
		[]models.CaseRow{{Identifier: "a/parsed.json"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_CopyFailureRollsBackAggregate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"public", casesTable}, caseColumns).WillReturnError(errors.New("copy broke"))
	mock.ExpectRollback()

	_, err = SaveRun(context.Background(), mock, "public", uuid.New(), "", testReport(),
		[]models.CaseRow{{Identifier: "a/parsed.json"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO invoice_metrics_cases")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_AggregateFailureSkipsCases(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	_, err = SaveRun(context.Background(), mock, "", uuid.New(), "", testReport(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: save aggregate 2024-05-01")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceCaseScores_InvalidDate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = ReplaceCaseScores(context.Background(), mock, "public", "05/01/2024", uuid.New(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCaseScores(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"identifier", "coverage_baseline", "coverage_model", "coverage_delta", "sum_matches_total", "near1pct_total", "near1pct_tax"}
	mock.ExpectQuery("ORDER BY position").
		WithArgs("2024-05-01").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("a/parsed.json", 1, 2, 1, true, false, true).
			AddRow("b/parsed.json", 3, 3, 0, false, false, false))

	got, err := GetCaseScores(context.Background(), mock, "public", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []models.CaseRow{
		{Identifier: "a/parsed.json", CoverageBaseline: 1, CoverageModel: 2, CoverageDelta: 1, SumMatchesTotal: true, Near1PctTax: true},
		{Identifier: "b/parsed.json", CoverageBaseline: 3, CoverageModel: 3},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
