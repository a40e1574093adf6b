package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"splitsync/internal/cli"
	"splitsync/internal/config"
	"splitsync/internal/log"
	"splitsync/internal/scheduler"
	"splitsync/internal/status"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting splitsync", log.FieldOperation, log.OpStartup, "backend", cfg.LedgerBackend)

	if err := cfg.Validate(); err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}

	ctx, stop := cli.GracefulShutdown()
	defer stop()

	app, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize", err)
	}
	defer app.Close()

	if err := app.Engine.Seed(ctx); err != nil {
		app.Close()
		cli.Fatal(logger, "Failed to seed reconciler state", err)
	}

	sched := scheduler.New(logger, app.Loops()...)

	if cfg.SweepOnStartup && app.Engine.Mirroring() {
		err := sched.Do(ctx, func(ctx context.Context) error {
			_, err := app.Engine.Sweep(ctx)
			return err
		})
		if err != nil {
			// not fatal, splitsync-admin sweep retries it
			logger.Error("Startup sweep failed", log.FieldOperation, log.OpSweep, log.FieldError, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if cfg.StatusAddr != "" {
		srv := status.New(cfg.StatusAddr, app.Engine, sched, app.Recorder, logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	logger.Info("Reconciler running",
		"ledger_interval", cfg.ActualPollInterval.String(),
		"splitter_interval", cfg.SpliitPollInterval.String(),
		"mirroring", app.Engine.Mirroring(),
		"status_addr", cfg.StatusAddr)

	start := time.Now()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Reconciler stopped with error", log.FieldError, err)
	}
	logger.Info("Shutdown complete",
		log.FieldOperation, log.OpShutdown,
		"uptime", time.Since(start).Round(time.Second).String())
}
