// Package scheduler drives the pipeline: an optional bootstrap, then
// repeated cycles of scan, reconcile, purge and export separated by a
// fixed sleep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ligovirgo/seismon/internal/feed"
	"github.com/ligovirgo/seismon/internal/idgen"
	"github.com/ligovirgo/seismon/internal/metrics"
	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/reconcile"
	"github.com/ligovirgo/seismon/internal/store"
)

// DefaultInterval is the sleep between cycles.
const DefaultInterval = 15 * time.Second

// Phase names used in logs and metrics.
const (
	PhaseScan      = "scan"
	PhaseReconcile = "reconcile"
	PhasePurge     = "purge"
	PhaseExport    = "export"
)

// Seeder loads the detector catalogue. *registry.Registry satisfies it.
type Seeder interface {
	Seed(ctx context.Context, detectors []model.Detector) (int, error)
}

// Reconciler fills missing predictions. *reconcile.Reconciler satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// Purger removes expired feed directories. *feed.Purger satisfies it.
type Purger interface {
	Purge(ctx context.Context) (feed.PurgeResult, error)
}

// Exporter publishes a snapshot. *export.Exporter satisfies it.
type Exporter interface {
	Export(ctx context.Context) error
}

// StatusReporter receives the outcome of every cycle. *health.Server
// satisfies it.
type StatusReporter interface {
	SetServing(ok bool)
}

// Deps are the collaborators of a Scheduler. Purger, Exporter and Health
// are optional.
type Deps struct {
	Store      store.Store
	Registry   Seeder
	Detectors  []model.Detector // seeded during bootstrap
	Scanner    *feed.Scanner
	Reconciler Reconciler
	Purger     Purger
	Exporter   Exporter
	Health     StatusReporter
}

// Options configures a Scheduler.
type Options struct {
	Init           bool          // reset the schema, seed detectors and force the first scan
	Once           bool          // run a single cycle and return
	Interval       time.Duration // sleep between cycles
	ExportInterval time.Duration // minimum time between exports; 0 exports every cycle
	Clock          Clock
}

// Scheduler runs the pipeline loop.
type Scheduler struct {
	deps   Deps
	opts   Options
	clock  Clock
	logger *slog.Logger

	lastExport time.Time
}

func New(deps Deps, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		deps:   deps,
		opts:   opts,
		clock:  opts.Clock,
		logger: logger.With("component", "scheduler"),
	}
}

// Run bootstraps if requested and then cycles until ctx is cancelled, a
// fatal error occurs, or, with Once, after the first cycle. Phase failures
// are logged and do not end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.Init {
		if err := s.bootstrap(ctx); err != nil {
			return err
		}
	}

	force := s.opts.Init
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.cycle(ctx, force); err != nil {
			return err
		}
		force = false
		if s.opts.Once {
			return nil
		}
		if err := s.clock.Sleep(ctx, s.opts.Interval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) bootstrap(ctx context.Context) error {
	s.logger.Info("bootstrapping", "detectors", len(s.deps.Detectors))
	if err := s.deps.Store.Reset(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", store.Fatal(err))
	}
	if _, err := s.deps.Registry.Seed(ctx, s.deps.Detectors); err != nil {
		return fmt.Errorf("bootstrap: %w", store.Fatal(err))
	}
	return nil
}

type phase struct {
	name string
	run  func(ctx context.Context, log *slog.Logger) error
}

// cycle runs every enabled phase once. Only cancellation and fatal errors
// are returned.
func (s *Scheduler) cycle(ctx context.Context, force bool) error {
	log := s.logger.With("cycle", idgen.Cycle())
	log.Debug("cycle started", "force", force)

	phases := []phase{
		{PhaseScan, func(ctx context.Context, log *slog.Logger) error { return s.scan(ctx, log, force) }},
		{PhaseReconcile, s.reconcile},
	}
	if s.deps.Purger != nil {
		phases = append(phases, phase{PhasePurge, s.purge})
	}
	if s.exportDue() {
		phases = append(phases, phase{PhaseExport, s.export})
	}

	healthy := true
	for _, p := range phases {
		start := time.Now()
		err := p.run(ctx, log)
		metrics.PhaseDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		healthy = false
		metrics.PhaseErrors.WithLabelValues(p.name).Inc()
		log.Error("phase failed", "phase", p.name, "err", err)
		if store.IsFatal(err) {
			s.report(false)
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}

	s.report(healthy)
	if healthy {
		metrics.LastSuccessfulCycle.Set(float64(s.clock.Now().Unix()))
	}
	return nil
}

func (s *Scheduler) report(ok bool) {
	if s.deps.Health != nil {
		s.deps.Health.SetServing(ok)
	}
}

func (s *Scheduler) scan(ctx context.Context, log *slog.Logger, force bool) error {
	res, err := s.deps.Scanner.WithForce(force).Scan(ctx)
	log.Info("scan finished",
		"partitions", res.Partitions, "ingested", len(res.Ingested), "skipped", res.Skipped,
		"malformed", res.Malformed, "stale", res.Stale, "duplicates", res.Duplicates)
	return err
}

func (s *Scheduler) reconcile(ctx context.Context, log *slog.Logger) error {
	res, err := s.deps.Reconciler.Reconcile(ctx)
	log.Info("reconcile finished",
		"pairs", res.Pairs, "created", res.Created, "failed", res.Failed,
		"skipped", res.Skipped, "fallbacks", res.Fallbacks)
	return err
}

func (s *Scheduler) purge(ctx context.Context, log *slog.Logger) error {
	res, err := s.deps.Purger.Purge(ctx)
	if err != nil {
		return err
	}
	log.Info("purge finished", "removed", len(res.Removed), "kept", res.Kept, "failures", len(res.Failures))
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d directories could not be removed", len(res.Failures))
	}
	return nil
}

func (s *Scheduler) exportDue() bool {
	if s.deps.Exporter == nil {
		return false
	}
	return s.lastExport.IsZero() || s.clock.Now().Sub(s.lastExport) >= s.opts.ExportInterval
}

func (s *Scheduler) export(ctx context.Context, _ *slog.Logger) error {
	s.lastExport = s.clock.Now()
	return s.deps.Exporter.Export(ctx)
}
