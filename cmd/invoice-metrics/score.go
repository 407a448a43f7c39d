package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/db"
	"github.com/facturaIA/invoice-metrics/internal/report"
	"github.com/facturaIA/invoice-metrics/internal/services"
	"github.com/facturaIA/invoice-metrics/internal/source"
	"github.com/facturaIA/invoice-metrics/internal/storage"
)

var scoreCmd = &cobra.Command{
	Use:   "score [YYYY-MM-DD]",
	Short: "Score one day of processed invoices",
	Long: `Score every processed invoice of a day and write the daily artifacts.

The date defaults to today in the configured timezone. Cases are listed from
the processed bucket under the prefix template, or from a local directory with
--local-dir. Artifacts go to the metrics prefix of the same bucket unless
--no-upload is set; --out-dir writes them to a local directory instead. Nothing
is written when no invoice was scored.

Examples:
  # Score yesterday's partition
  score 2024-05-01

  # Try the first 20 invoices without uploading, printing example changes
  score 2024-05-01 --limit 20 --no-upload --show-diffs

  # Score a local export and keep the artifacts next to it
  score 2024-05-01 --local-dir ./export --out-dir ./export/metrics

  # Also record the run in Postgres
  score 2024-05-01 --save-db`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("bucket", "", "processed bucket (overrides config)")
	f.String("prefix-tpl", "", "key prefix template with {yyyy}/{mm}/{dd} (overrides config)")
	f.String("local-dir", "", "score parsed.json files under this directory instead of the bucket")
	f.Int("limit", 0, "stop after this many scored invoices (0 = all)")
	f.Bool("show-diffs", false, "print example fills and fixes")
	f.Bool("no-upload", false, "do not write artifacts to the bucket")
	f.Bool("lift-baseline", false, "map a flat baseline onto canonical field paths before comparing")
	f.Bool("baseline-flat", false, "read sample baseline values through the flat baseline keys")
	f.Bool("save-db", false, "record the aggregate and rows in Postgres")
	f.String("out-dir", "", "write artifacts under this local directory")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags := cmd.Flags()
	bucket, _ := flags.GetString("bucket")
	prefixTpl, _ := flags.GetString("prefix-tpl")
	localDir, _ := flags.GetString("local-dir")
	limit, _ := flags.GetInt("limit")
	showDiffs, _ := flags.GetBool("show-diffs")
	noUpload, _ := flags.GetBool("no-upload")
	lift, _ := flags.GetBool("lift-baseline")
	flat, _ := flags.GetBool("baseline-flat")
	saveDB, _ := flags.GetBool("save-db")
	outDir, _ := flags.GetString("out-dir")

	if limit < 0 {
		return eris.Errorf("score: --limit must be >= 0 (got %d)", limit)
	}
	if bucket != "" {
		cfg.Storage.Bucket = bucket
	}
	if prefixTpl != "" {
		cfg.Source.PrefixTemplate = prefixTpl
	}

	mode := "score"
	if localDir != "" {
		mode = "score-local"
	}
	if err := cfg.Validate(mode); err != nil {
		return err
	}
	if saveDB {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
	}

	var dateArg string
	if len(args) > 0 {
		dateArg = args[0]
	}
	day, err := services.ResolveDate(dateArg, cfg.Source.Location())
	if err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "score"), zap.String("date", day.String()))

	cmp, err := services.NewComparator(cfg.Scoring)
	if err != nil {
		return err
	}

	var (
		src  source.Source
		sink report.Sink
	)
	if localDir != "" {
		local, err := source.NewLocal(localDir, cfg.Source.LeafName)
		if err != nil {
			return err
		}
		src = local
	} else {
		store, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		src = source.NewRemote(store, day.Expand(cfg.Source.PrefixTemplate), cfg.Source.LeafName)
		if !noUpload {
			sink = store
		}
	}
	if outDir != "" {
		sink = storage.NewDir(outDir)
	}

	var pool db.Pool
	if saveDB {
		p, err := db.Connect(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
	}

	scorer := services.NewScorer(cmp, pool, cfg.Store.Schema, report.HTMLOptions{
		Fields:         cmp.Fields(),
		SourceTemplate: cfg.Source.PrefixTemplate + "**/" + leafName(),
	})

	console := report.NewConsole(cmd.OutOrStdout(), report.ConsoleOptions{
		Fields:      cmp.Fields(),
		PreviewRows: cfg.Scoring.PreviewRows,
		SampleLimit: cfg.Scoring.SampleLimit,
	})
	console.Scanning(src.Describe())

	res, err := scorer.Run(ctx, services.ScoreRequest{
		Partition:      day,
		Source:         src,
		Sink:           sink,
		MetricsPrefix:  day.Expand(cfg.Source.MetricsTemplate),
		Limit:          limit,
		CollectSamples: showDiffs,
		SampleLimit:    cfg.Scoring.SampleLimit,
		BaselineFlat:   flat,
		LiftBaseline:   lift,
		SaveDB:         saveDB,
	})
	if err != nil {
		log.Error("score failed, nothing persisted",
			zap.Int("scored", res.Report.CountScored),
			zap.Int("skipped", res.Skipped),
			zap.Error(err),
		)
		return err
	}

	if !showDiffs {
		res.Fills, res.Fixes = nil, nil
	}
	console.Summary(res.Source, res.Report, res.Rows, res.Fills, res.Fixes)

	switch {
	case res.Report.CountScored == 0:
		fmt.Fprintln(cmd.OutOrStdout(), "No invoices scored; artifacts not written.")
	case sink == nil:
		fmt.Fprintln(cmd.OutOrStdout(), "Upload skipped.")
	}
	for _, loc := range res.Written {
		console.Wrote(loc)
	}

	log.Info("score complete",
		zap.String("run_id", res.RunID.String()),
		zap.Int("scored", res.Report.CountScored),
		zap.Int("written", len(res.Written)),
		zap.Bool("stored", res.Stored),
	)
	return nil
}

func leafName() string {
	if cfg.Source.LeafName == "" {
		return source.DefaultLeafName
	}
	return cfg.Source.LeafName
}
