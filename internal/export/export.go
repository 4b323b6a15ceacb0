// Package export writes snapshots of the event and prediction tables for
// downstream consumers, as JSONL or Parquet, to local files or S3.
package export

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/ligovirgo/seismon/internal/idgen"
	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

// Format selects the snapshot encoding.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSONL, FormatParquet:
		return f, nil
	case "":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type of an encoded snapshot.
func (f Format) ContentType() string {
	if f == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "application/x-ndjson"
}

// header is the first JSONL record.
type header struct {
	Version         string    `json:"version"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	EventCount      int       `json:"event_count"`
	PredictionCount int       `json:"prediction_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// snapshot is a consistent read of both tables.
type snapshot struct {
	events      []*model.Event
	predictions []*model.Prediction
}

// load lists predictions before events. Events are never deleted, so every
// listed prediction finds its event even at READ COMMITTED while a writer
// is active.
func load(ctx context.Context, s store.Store) (*snapshot, error) {
	var snap snapshot
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		if snap.predictions, err = tx.ListPredictions(ctx); err != nil {
			return fmt.Errorf("list predictions: %w", err)
		}
		if snap.events, err = tx.ListEvents(ctx, store.EventFilter{}); err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(snap.events, func(a, b *model.Event) int {
		return cmp.Compare(a.EventID, b.EventID)
	})
	slices.SortFunc(snap.predictions, func(a, b *model.Prediction) int {
		return cmp.Or(cmp.Compare(a.EventID, b.EventID), cmp.Compare(a.Detector, b.Detector))
	})
	return &snap, nil
}

// WriteJSONL writes a header line, then every event and every prediction
// sorted by key.
func WriteJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	snap, err := load(ctx, s)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:         "1",
		Type:            "header",
		Timestamp:       time.Now().UTC(),
		EventCount:      len(snap.events),
		PredictionCount: len(snap.predictions),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, e := range snap.events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %s: %w", e.EventID, err)
		}
	}
	for _, p := range snap.predictions {
		if err := enc.Encode(record{Type: "prediction", Data: p}); err != nil {
			return fmt.Errorf("encode prediction %s: %w", p.Key(), err)
		}
	}
	return nil
}

// Write encodes a snapshot in the given format.
func Write(ctx context.Context, s store.Store, format Format, w io.Writer) error {
	if format == FormatParquet {
		return WriteParquet(ctx, s, w)
	}
	return WriteJSONL(ctx, s, w)
}

// Exporter encodes a snapshot once and hands it to every destination.
type Exporter struct {
	store        store.Store
	format       Format
	destinations []Destination
	logger       *slog.Logger
}

func New(s store.Store, format Format, destinations []Destination, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		store:        s,
		format:       format,
		destinations: destinations,
		logger:       logger.With("component", "export"),
	}
}

// Export writes one snapshot. A failing destination does not stop the
// others; their errors are joined.
func (e *Exporter) Export(ctx context.Context) error {
	var buf bytes.Buffer
	if err := Write(ctx, e.store, e.format, &buf); err != nil {
		return fmt.Errorf("export %s: %w", e.format, err)
	}
	data := buf.Bytes()

	id, err := idgen.New(idgen.ExportPrefix)
	if err != nil {
		id = idgen.ExportPrefix
	}
	log := e.logger.With("export", id)

	var errs []error
	for _, dest := range e.destinations {
		if err := dest.Write(ctx, data); err != nil {
			log.Error("export destination write failed", "destination", dest.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}

	log.Info("export completed", "format", e.format, "destinations", len(e.destinations), "bytes", len(data))
	return errors.Join(errs...)
}
