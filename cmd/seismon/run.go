package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ligovirgo/seismon/internal/export"
	"github.com/ligovirgo/seismon/internal/feed"
	"github.com/ligovirgo/seismon/internal/health"
	"github.com/ligovirgo/seismon/internal/metrics"
	"github.com/ligovirgo/seismon/internal/oracle"
	"github.com/ligovirgo/seismon/internal/reconcile"
	"github.com/ligovirgo/seismon/internal/registry"
	"github.com/ligovirgo/seismon/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Scan the feed and compute predictions in a loop",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		initDB, _ := cmd.Flags().GetBool("init-db")
		purge, _ := cmd.Flags().GetBool("purge")
		debug, _ := cmd.Flags().GetBool("debug")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if cmd.Flags().Changed("lookback") {
			cfg.Feed.LookbackDays, _ = cmd.Flags().GetInt("lookback")
			if cfg.Feed.LookbackDays <= 0 {
				return fmt.Errorf("--lookback must be positive, got %d", cfg.Feed.LookbackDays)
			}
		}

		format, err := export.ParseFormat(cfg.Export.Format)
		if err != nil {
			return err
		}
		detectors, err := catalogue()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		pub, err := newPublisher()
		if err != nil {
			s.Close()
			return err
		}
		defer closeAll(pub, s)

		reg := registry.New(s, registry.DefaultTTL, logger)
		amplitude := oracle.NewRegressionModel(cfg.Amplitude.DatasetDir, cfg.Amplitude.Threshold)

		deps := scheduler.Deps{
			Store:     s,
			Registry:  reg,
			Detectors: detectors,
			Scanner: feed.NewScanner(s, pub, feed.ScanOptions{
				Root:     cfg.Feed.Directory,
				Lookback: cfg.Lookback(),
			}, logger),
			Reconciler: reconcile.New(s, reg,
				oracle.NewTravelTimeOracle(nil, logger),
				oracle.NewAmplitudeOracle(amplitude, cfg.Amplitude.LocklossThreshold),
				pub,
				reconcile.Options{Workers: cfg.Scheduler.Workers, MissingQuery: true},
				logger),
		}
		if purge {
			deps.Purger = feed.NewPurger(feed.PurgeOptions{
				Root:   cfg.Feed.Directory,
				MaxAge: cfg.Feed.Retention,
				DryRun: dryRun,
			}, logger)
		}
		if cfg.Export.Interval > 0 {
			if dests := exportDestinations(ctx, format); len(dests) > 0 {
				deps.Exporter = export.New(s, format, dests, logger)
			}
		}

		if addr := cfg.Ops.MetricsAddr; addr != "" {
			go func() {
				if err := metrics.Serve(ctx, addr, logger); err != nil {
					logger.Error("metrics server error", "err", err)
				}
			}()
		}
		if addr := cfg.Ops.HealthAddr; addr != "" {
			hs := health.New(logger)
			deps.Health = hs
			go func() {
				if err := hs.ListenAndServe(ctx, addr); err != nil {
					logger.Error("health server error", "err", err)
				}
			}()
		}

		logger.Info("seismon started",
			"feed", cfg.Feed.Directory,
			"lookback_days", cfg.Feed.LookbackDays,
			"interval", cfg.Scheduler.Interval,
			"init", initDB, "purge", purge, "once", debug)

		err = scheduler.New(deps, scheduler.Options{
			Init:           initDB,
			Once:           debug,
			Interval:       cfg.Scheduler.Interval,
			ExportInterval: cfg.Export.Interval,
		}, logger).Run(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Info("received signal, shutting down")
			return nil
		}
		return err
	},
}

func init() {
	runCmd.Flags().BoolP("init-db", "i", false, "reset the schema, seed detectors and re-read the whole feed")
	runCmd.Flags().BoolP("purge", "p", false, "remove feed directories older than the retention age")
	runCmd.Flags().IntP("lookback", "l", 7, "ignore events older than this many days")
	runCmd.Flags().BoolP("debug", "d", false, "run a single cycle and exit")
	runCmd.Flags().Bool("dry-run", false, "with --purge, log what would be removed without deleting")
}
