// Package reconcile fills the prediction table: every (event, detector)
// pair without a row gets its arrival times and ground-motion estimate
// computed and recorded exactly once.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ligovirgo/seismon/internal/events"
	"github.com/ligovirgo/seismon/internal/metrics"
	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/oracle"
	"github.com/ligovirgo/seismon/internal/store"
)

// DetectorSource lists the detectors predictions are computed for.
// *registry.Registry satisfies it.
type DetectorSource interface {
	Detectors(ctx context.Context) ([]*model.Detector, error)
}

// Options configures a Reconciler.
type Options struct {
	Workers int // pairs computed concurrently; 1 is strictly serial

	// MissingQuery asks the store for the pairs lacking a row instead of
	// sweeping events × detectors and checking each pair.
	MissingQuery bool
}

// DefaultOptions returns the serial, anti-join backed configuration.
func DefaultOptions() Options {
	return Options{Workers: 1, MissingQuery: true}
}

// Result tallies one reconciliation pass.
type Result struct {
	Pairs     int // pairs considered
	Existing  int // already had a row (sweep mode only)
	Created   int // rows written by this pass
	Skipped   int // another writer recorded the pair first
	Failed    int // amplitude computation failed; retried next pass
	Fallbacks int // rows whose P and S fell back to the surface wave
}

// Reconciler computes missing predictions.
type Reconciler struct {
	store      store.Store
	detectors  DetectorSource
	traveltime *oracle.TravelTimeOracle
	amplitude  *oracle.AmplitudeOracle
	publisher  events.Publisher
	opts       Options
	logger     *slog.Logger

	mu  sync.Mutex
	res Result
}

func New(s store.Store, detectors DetectorSource, tt *oracle.TravelTimeOracle, amp *oracle.AmplitudeOracle,
	pub events.Publisher, opts Options, logger *slog.Logger) *Reconciler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:      s,
		detectors:  detectors,
		traveltime: tt,
		amplitude:  amp,
		publisher:  pub,
		opts:       opts,
		logger:     logger.With("component", "reconcile"),
	}
}

type pair struct {
	event    *model.Event
	detector *model.Detector
	checked  bool // known to lack a row
}

func (p pair) key() model.PredictionKey {
	return model.PredictionKey{EventID: p.event.EventID, Detector: p.detector.Name}
}

// Reconcile runs one pass. Amplitude failures are isolated to their pair;
// storage errors end the pass, keeping rows already committed.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	r.mu.Lock()
	r.res = Result{}
	r.mu.Unlock()

	pairs, err := r.pairs(ctx)
	if err != nil {
		return r.result(), err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, p := range pairs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return r.process(gctx, p)
		})
	}
	if err := g.Wait(); err != nil {
		return r.result(), err
	}
	return r.result(), ctx.Err()
}

func (r *Reconciler) result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.res
}

// pairs lists the work for one pass, ordered by event origin time then
// detector name.
func (r *Reconciler) pairs(ctx context.Context) ([]pair, error) {
	detectors, err := r.detectors.Detectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list detectors: %w", err)
	}

	if !r.opts.MissingQuery {
		evs, err := r.store.ListEvents(ctx, store.EventFilter{})
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		pairs := make([]pair, 0, len(evs)*len(detectors))
		for _, ev := range evs {
			for _, d := range detectors {
				pairs = append(pairs, pair{event: ev, detector: d})
			}
		}
		return pairs, nil
	}

	keys, err := r.store.MissingPredictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list missing predictions: %w", err)
	}
	byName := make(map[string]*model.Detector, len(detectors))
	for _, d := range detectors {
		byName[d.Name] = d
	}
	loaded := map[string]*model.Event{}
	pairs := make([]pair, 0, len(keys))
	for _, k := range keys {
		d, ok := byName[k.Detector]
		if !ok {
			continue
		}
		ev, ok := loaded[k.EventID]
		if !ok {
			if ev, err = r.store.GetEvent(ctx, k.EventID); err != nil {
				return nil, fmt.Errorf("load event %s: %w", k.EventID, err)
			}
			loaded[k.EventID] = ev
		}
		pairs = append(pairs, pair{event: ev, detector: d, checked: true})
	}
	return pairs, nil
}

func (r *Reconciler) process(ctx context.Context, p pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := p.key()
	r.tally(func(res *Result) { res.Pairs++ })

	if !p.checked {
		has, err := r.store.HasPrediction(ctx, key)
		if err != nil {
			return fmt.Errorf("check prediction %s: %w", key, err)
		}
		if has {
			r.tally(func(res *Result) { res.Existing++ })
			return nil
		}
	}

	pred, fallback, err := r.compute(p)
	if err != nil {
		r.tally(func(res *Result) { res.Failed++ })
		metrics.PredictionFailures.Inc()
		r.logger.Error("prediction failed", "event", key.EventID, "detector", key.Detector, "err", err)
		return nil
	}

	var inserted bool
	err = r.store.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		inserted, err = tx.InsertPrediction(ctx, pred)
		return err
	})
	if err != nil {
		return fmt.Errorf("record prediction %s: %w", key, err)
	}
	if !inserted {
		r.tally(func(res *Result) { res.Skipped++ })
		return nil
	}

	r.tally(func(res *Result) {
		res.Created++
		if fallback {
			res.Fallbacks++
		}
	})
	metrics.PredictionsCreated.Inc()
	r.logger.Info("recorded prediction",
		"event", key.EventID, "detector", key.Detector,
		"distance_km", pred.Distance, "amplitude", pred.Amplitude, "lockloss", pred.Lockloss)

	if err := r.publisher.Publish(ctx, events.TopicPredictionCreated, events.PredictionCreated{Prediction: pred}); err != nil {
		r.logger.Warn("publish failed", "topic", events.TopicPredictionCreated, "err", err)
	}
	return nil
}

// compute runs the travel-time and amplitude oracles. Nothing is returned
// unless both succeed.
func (r *Reconciler) compute(p pair) (*model.Prediction, bool, error) {
	ev, d := p.event, p.detector
	tt := r.traveltime.Compute(ev.Depth, ev.Time,
		oracle.Position{Latitude: ev.Latitude, Longitude: ev.Longitude},
		oracle.Position{Latitude: d.Latitude, Longitude: d.Longitude})

	amp, err := r.amplitude.Compute(d, ev)
	if err != nil {
		return nil, false, fmt.Errorf("amplitude: %w", err)
	}

	return &model.Prediction{
		EventID:   ev.EventID,
		Detector:  d.Name,
		Distance:  tt.Distance,
		P:         tt.P.UTC(),
		S:         tt.S.UTC(),
		R2p0:      tt.R2p0.UTC(),
		R3p5:      tt.R3p5.UTC(),
		R5p0:      tt.R5p0.UTC(),
		Amplitude: amp.Value,
		Lockloss:  amp.Lockloss,
	}, tt.Fallback, nil
}

func (r *Reconciler) tally(fn func(*Result)) {
	r.mu.Lock()
	fn(&r.res)
	r.mu.Unlock()
}
