package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/api"
	"github.com/facturaIA/invoice-metrics/internal/auth"
	"github.com/facturaIA/invoice-metrics/internal/db"
	"github.com/facturaIA/invoice-metrics/internal/models"
	"github.com/facturaIA/invoice-metrics/internal/report"
	"github.com/facturaIA/invoice-metrics/internal/storage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored daily metrics over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate("serve"); err != nil {
		return err
	}
	log := zap.L().With(zap.String("command", "serve"))

	authSvc, err := auth.New(cfg.Auth)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, cfg.Store.Schema); err != nil {
		return err
	}

	opts := api.Options{
		Pool:            pool,
		Schema:          cfg.Store.Schema,
		PresignTTL:      cfg.Storage.PresignTTL(),
		MetricsTemplate: cfg.Source.MetricsTemplate,
		HTML:            report.HTMLOptions{Fields: models.CanonicalFields()},
		Auth:            authSvc,
	}
	if cfg.Storage.Bucket != "" {
		store, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			log.Warn("MinIO storage not available, report links disabled", zap.Error(err))
		} else {
			opts.Presigner = store
		}
	}

	handler := api.NewHandler(opts)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting invoice metrics API",
		zap.String("addr", addr),
		zap.String("version", api.Version),
		zap.Bool("storage", opts.Presigner != nil),
	)
	for _, ep := range []string{
		"POST /api/login                     - Authenticate",
		"GET  /api/metrics                   - List daily aggregates (requires JWT)",
		"GET  /api/metrics/{date}            - Daily aggregate (requires JWT)",
		"GET  /api/metrics/{date}/cases      - Per-invoice rows (requires JWT)",
		"GET  /api/metrics/{date}/report     - HTML report (requires JWT)",
		"GET  /api/metrics/{date}/report-url - Presigned report link (requires JWT)",
		"GET  /health                        - Health check",
	} {
		log.Info("endpoint", zap.String("route", ep))
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
