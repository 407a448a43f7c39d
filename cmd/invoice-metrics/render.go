package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/models"
	"github.com/facturaIA/invoice-metrics/internal/report"
	"github.com/facturaIA/invoice-metrics/internal/services"
	"github.com/facturaIA/invoice-metrics/internal/storage"
)

var renderCmd = &cobra.Command{
	Use:   "render [YYYY-MM-DD]",
	Short: "Rebuild report.html from a day's persisted aggregate and rows",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().String("out-dir", "", "read and write artifacts under this local directory instead of the bucket")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outDir, _ := cmd.Flags().GetString("out-dir")

	var dateArg string
	if len(args) > 0 {
		dateArg = args[0]
	}
	day, err := services.ResolveDate(dateArg, cfg.Source.Location())
	if err != nil {
		return err
	}

	var store services.ArtifactStore
	if outDir != "" {
		store = storage.NewDir(outDir)
	} else {
		if err := cfg.Validate("render"); err != nil {
			return err
		}
		s, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		store = s
	}

	prefix := day.Expand(cfg.Source.MetricsTemplate)
	loc, r, err := services.RenderReport(ctx, store, prefix, report.HTMLOptions{
		Fields:         models.CanonicalFields(),
		SourceTemplate: cfg.Source.PrefixTemplate + "**/" + leafName(),
	})
	if err != nil {
		return err
	}

	zap.L().Info("render complete",
		zap.String("command", "render"),
		zap.String("date", r.Date),
		zap.Int("scored", r.CountScored),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", loc)
	return nil
}
