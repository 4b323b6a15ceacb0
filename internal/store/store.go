// Package store defines the persistence contract shared by the feed scanner,
// the prediction reconciler and the detector registry.
package store

import (
	"context"
	"time"

	"github.com/ligovirgo/seismon/internal/model"
)

// EventFilter narrows ListEvents. The zero value lists every event.
type EventFilter struct {
	Since      time.Time // origin time lower bound (inclusive); zero = no bound
	Limit      int       // 0 = no limit
	Descending bool      // newest first; Limit then keeps the most recent events
}

// Store defines the persistence interface for events, detectors and predictions.
//
// Create/Add/Insert methods have insert-if-absent semantics: they report
// whether a row was written and never overwrite an existing row.
type Store interface {
	// Events
	CreateEvent(ctx context.Context, event *model.Event) (bool, error)
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	EventExists(ctx context.Context, eventID string) (bool, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*model.Event, error)

	// Detectors
	AddDetector(ctx context.Context, detector *model.Detector) (bool, error)
	ListDetectors(ctx context.Context) ([]*model.Detector, error)

	// Predictions
	HasPrediction(ctx context.Context, key model.PredictionKey) (bool, error)
	InsertPrediction(ctx context.Context, prediction *model.Prediction) (bool, error)
	GetPrediction(ctx context.Context, key model.PredictionKey) (*model.Prediction, error)
	PredictionsForEvent(ctx context.Context, eventID string) ([]*model.Prediction, error)
	ListPredictions(ctx context.Context) ([]*model.Prediction, error)
	MissingPredictions(ctx context.Context) ([]model.PredictionKey, error) // pairs without a row, by event time then detector

	// Schema
	Reset(ctx context.Context) error // drop and recreate every table

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
