package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

// PredictionRow is one prediction joined with its event.
type PredictionRow struct {
	EventID     string  `parquet:"event_id,zstd"`
	Detector    string  `parquet:"detector,zstd"`
	OriginMs    int64   `parquet:"origin_ms"`
	Latitude    float64 `parquet:"lat"`
	Longitude   float64 `parquet:"lon"`
	Depth       float64 `parquet:"depth"`
	Magnitude   float64 `parquet:"magnitude"`
	Distance    float64 `parquet:"distance"`
	PMs         int64   `parquet:"p_ms"`
	SMs         int64   `parquet:"s_ms"`
	R2p0Ms      int64   `parquet:"r2p0_ms"`
	R3p5Ms      int64   `parquet:"r3p5_ms"`
	R5p0Ms      int64   `parquet:"r5p0_ms"`
	Amplitude   float64 `parquet:"amplitude"`
	Lockloss    bool    `parquet:"lockloss"`
	CreatedAtMs int64   `parquet:"created_at_ms"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toRow(e *model.Event, p *model.Prediction) PredictionRow {
	return PredictionRow{
		EventID:     p.EventID,
		Detector:    p.Detector,
		OriginMs:    millis(e.Time),
		Latitude:    e.Latitude,
		Longitude:   e.Longitude,
		Depth:       e.Depth,
		Magnitude:   e.Magnitude,
		Distance:    p.Distance,
		PMs:         millis(p.P),
		SMs:         millis(p.S),
		R2p0Ms:      millis(p.R2p0),
		R3p5Ms:      millis(p.R3p5),
		R5p0Ms:      millis(p.R5p0),
		Amplitude:   p.Amplitude,
		Lockloss:    p.Lockloss,
		CreatedAtMs: millis(p.CreatedAt),
	}
}

// WriteParquet writes one zstd-compressed row per prediction.
func WriteParquet(ctx context.Context, s store.Store, w io.Writer) error {
	snap, err := load(ctx, s)
	if err != nil {
		return err
	}
	byID := make(map[string]*model.Event, len(snap.events))
	for _, e := range snap.events {
		byID[e.EventID] = e
	}

	rows := make([]PredictionRow, 0, len(snap.predictions))
	for _, p := range snap.predictions {
		e, ok := byID[p.EventID]
		if !ok {
			return fmt.Errorf("prediction %s references unknown event", p.Key())
		}
		rows = append(rows, toRow(e, p))
	}

	writer := parquet.NewGenericWriter[PredictionRow](w, parquet.Compression(&parquet.Zstd))
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
