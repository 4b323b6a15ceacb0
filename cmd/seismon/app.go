package main

import (
	"context"
	"fmt"

	"github.com/ligovirgo/seismon/internal/events"
	"github.com/ligovirgo/seismon/internal/export"
	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/registry"
	"github.com/ligovirgo/seismon/internal/store"
	"github.com/ligovirgo/seismon/internal/store/postgres"
	"github.com/ligovirgo/seismon/internal/store/sqlite"
)

// openStore connects to the configured backend and bounds every call by the
// configured timeout, retrying transient failures.
func openStore() (store.Store, error) {
	var s store.Store
	if cfg.IsSQLite() {
		st, err := sqlite.New(cfg.DatabaseURL())
		if err != nil {
			return nil, err
		}
		s = st
	} else {
		st, err := postgres.New(cfg.DatabaseURL())
		if err != nil {
			return nil, err
		}
		s = st
	}
	logger.Debug("store opened", "driver", cfg.Database.Driver)
	return store.WithRetry(s, store.RetryOptions{Timeout: cfg.Database.Timeout}, logger), nil
}

func newPublisher() (events.Publisher, error) {
	if cfg.Events.NATSURL == "" {
		logger.Info("events disabled (SEISMON_NATS_URL not set)")
		return &events.NoopPublisher{}, nil
	}
	pub, err := events.NewNATSPublisher(cfg.Events.NATSURL)
	if err != nil {
		return nil, err
	}
	logger.Info("events enabled", "nats_url", cfg.Events.NATSURL)
	return pub, nil
}

// catalogue returns the detectors seeded at bootstrap.
func catalogue() ([]model.Detector, error) {
	if cfg.Registry.Catalogue == "" {
		return registry.Builtin, nil
	}
	return registry.LoadCatalogue(cfg.Registry.Catalogue)
}

// exportDestinations builds the configured snapshot targets. An unusable
// S3 destination is logged and skipped.
func exportDestinations(ctx context.Context, format export.Format) []export.Destination {
	var dests []export.Destination
	if cfg.Export.File != "" {
		dests = append(dests, export.NewFileDestination(cfg.Export.File))
		logger.Info("export file destination enabled", "file", cfg.Export.File)
	}
	if cfg.Export.S3Bucket != "" {
		d, err := export.NewS3Destination(ctx, cfg.Export.S3Bucket, cfg.ExportKey(), cfg.Export.S3Region, cfg.Export.S3Endpoint, format)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, d)
			logger.Info("export S3 destination enabled", "bucket", cfg.Export.S3Bucket, "key", cfg.ExportKey())
		}
	}
	return dests
}

func closeAll(closers ...interface{ Close() error }) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error(fmt.Sprintf("close %T", c), "err", err)
		}
	}
}
