package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryan-buckman/rssagg/internal/app"
	"github.com/bryan-buckman/rssagg/internal/database"
	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/metrics"
	"github.com/bryan-buckman/rssagg/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web UI and poll tracked feeds",
	Long: `Starts the HTTP server and the background poller.

Feeds and posts are restored from the configured storage on start and saved
as they arrive. Interrupt or terminate the process to shut down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	logger.Infof("Using %s storage", db.DatabaseType())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, app.Options{DB: db, Metrics: metrics.New(reg)})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a, reg)
	if err != nil {
		return err
	}

	a.Start(ctx)
	return srv.Serve(ctx, cfg.Server.Addr)
}
