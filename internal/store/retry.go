package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ligovirgo/seismon/internal/model"
)

// RetryOptions configures WithRetry.
type RetryOptions struct {
	MaxTries        uint          // attempts per call, including the first (default 5)
	InitialInterval time.Duration // first backoff delay (default 200ms)
	MaxInterval     time.Duration // backoff ceiling (default 10s)
	Timeout         time.Duration // per-attempt deadline; 0 = none
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxTries == 0 {
		o.MaxTries = 5
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 200 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 10 * time.Second
	}
	return o
}

// retryStore decorates a Store so each call gets a deadline and transient
// failures are retried with exponential backoff. Every Store operation is
// idempotent (reads, insert-if-absent writes, schema reset), so replaying a
// call whose outcome is unknown is safe.
type retryStore struct {
	inner  Store
	opts   RetryOptions
	logger *slog.Logger
}

// Compile-time check that retryStore implements Store.
var _ Store = (*retryStore)(nil)

// WithRetry wraps s with per-call timeouts and retries of transient errors.
func WithRetry(s Store, opts RetryOptions, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryStore{inner: s, opts: opts.withDefaults(), logger: logger}
}

func retryCall[T any](ctx context.Context, r *retryStore, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		}
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		if callCtx.Err() != nil && ctx.Err() == nil {
			err = Transient(err)
		}
		if !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("storage call failed, retrying", "op", op, "retry_in", next, "err", err)
		}),
	)
}

func retryExec(ctx context.Context, r *retryStore, op string, fn func(ctx context.Context) error) error {
	_, err := retryCall(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *retryStore) CreateEvent(ctx context.Context, event *model.Event) (bool, error) {
	return retryCall(ctx, r, "create_event", func(ctx context.Context) (bool, error) {
		return r.inner.CreateEvent(ctx, event)
	})
}

func (r *retryStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	return retryCall(ctx, r, "get_event", func(ctx context.Context) (*model.Event, error) {
		return r.inner.GetEvent(ctx, eventID)
	})
}

func (r *retryStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	return retryCall(ctx, r, "event_exists", func(ctx context.Context) (bool, error) {
		return r.inner.EventExists(ctx, eventID)
	})
}

func (r *retryStore) ListEvents(ctx context.Context, filter EventFilter) ([]*model.Event, error) {
	return retryCall(ctx, r, "list_events", func(ctx context.Context) ([]*model.Event, error) {
		return r.inner.ListEvents(ctx, filter)
	})
}

func (r *retryStore) AddDetector(ctx context.Context, detector *model.Detector) (bool, error) {
	return retryCall(ctx, r, "add_detector", func(ctx context.Context) (bool, error) {
		return r.inner.AddDetector(ctx, detector)
	})
}

func (r *retryStore) ListDetectors(ctx context.Context) ([]*model.Detector, error) {
	return retryCall(ctx, r, "list_detectors", func(ctx context.Context) ([]*model.Detector, error) {
		return r.inner.ListDetectors(ctx)
	})
}

func (r *retryStore) HasPrediction(ctx context.Context, key model.PredictionKey) (bool, error) {
	return retryCall(ctx, r, "has_prediction", func(ctx context.Context) (bool, error) {
		return r.inner.HasPrediction(ctx, key)
	})
}

func (r *retryStore) InsertPrediction(ctx context.Context, prediction *model.Prediction) (bool, error) {
	return retryCall(ctx, r, "insert_prediction", func(ctx context.Context) (bool, error) {
		return r.inner.InsertPrediction(ctx, prediction)
	})
}

func (r *retryStore) GetPrediction(ctx context.Context, key model.PredictionKey) (*model.Prediction, error) {
	return retryCall(ctx, r, "get_prediction", func(ctx context.Context) (*model.Prediction, error) {
		return r.inner.GetPrediction(ctx, key)
	})
}

func (r *retryStore) PredictionsForEvent(ctx context.Context, eventID string) ([]*model.Prediction, error) {
	return retryCall(ctx, r, "predictions_for_event", func(ctx context.Context) ([]*model.Prediction, error) {
		return r.inner.PredictionsForEvent(ctx, eventID)
	})
}

func (r *retryStore) ListPredictions(ctx context.Context) ([]*model.Prediction, error) {
	return retryCall(ctx, r, "list_predictions", func(ctx context.Context) ([]*model.Prediction, error) {
		return r.inner.ListPredictions(ctx)
	})
}

func (r *retryStore) MissingPredictions(ctx context.Context) ([]model.PredictionKey, error) {
	return retryCall(ctx, r, "missing_predictions", func(ctx context.Context) ([]model.PredictionKey, error) {
		return r.inner.MissingPredictions(ctx)
	})
}

func (r *retryStore) Reset(ctx context.Context) error {
	return retryExec(ctx, r, "reset", r.inner.Reset)
}

// RunInTransaction retries the whole transaction on transient failures,
// each attempt under the per-call deadline. fn may therefore run more than
// once and must confine itself to store work through tx; the
// insert-if-absent writes make a replay safe. tx is the undecorated inner
// handle, so statements inside fn are not retried individually.
func (r *retryStore) RunInTransaction(ctx context.Context, fn func(tx Store) error) error {
	return retryExec(ctx, r, "transaction", func(ctx context.Context) error {
		return r.inner.RunInTransaction(ctx, fn)
	})
}

func (r *retryStore) Close() error {
	return r.inner.Close()
}
