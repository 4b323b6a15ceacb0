package sqlite

import (
	"time"

	"github.com/ligovirgo/seismon/internal/model"
)

type eventRow struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"column:event_id;uniqueIndex;not null"`
	Lat       float64   `gorm:"column:lat;not null"`
	Lon       float64   `gorm:"column:lon;not null"`
	Depth     float64   `gorm:"column:depth;not null"`
	Magnitude float64   `gorm:"column:magnitude;index;not null"`
	Time      time.Time `gorm:"column:time;index;not null"`
	Sent      time.Time `gorm:"column:sent;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (eventRow) TableName() string { return "events" }

type detectorRow struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;uniqueIndex;not null"`
	Lat       float64   `gorm:"column:lat;not null"`
	Lon       float64   `gorm:"column:lon;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (detectorRow) TableName() string { return "detectors" }

type predictionRow struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"column:event_id;uniqueIndex:uq_predictions_pair;not null"`
	Detector  string    `gorm:"column:detector;uniqueIndex:uq_predictions_pair;index;not null"`
	Distance  float64   `gorm:"column:distance;not null"`
	P         time.Time `gorm:"column:p;not null"`
	S         time.Time `gorm:"column:s;not null"`
	R2p0      time.Time `gorm:"column:r2p0;not null"`
	R3p5      time.Time `gorm:"column:r3p5;not null"`
	R5p0      time.Time `gorm:"column:r5p0;not null"`
	Amplitude float64   `gorm:"column:amplitude;not null"`
	Lockloss  bool      `gorm:"column:lockloss;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`

	// Foreign keys only; never preloaded or saved.
	Event eventRow    `gorm:"foreignKey:EventID;references:EventID"`
	Site  detectorRow `gorm:"foreignKey:Detector;references:Name"`
}

func (predictionRow) TableName() string { return "predictions" }

// tables lists every row type in creation order.
var tables = []any{&eventRow{}, &detectorRow{}, &predictionRow{}}

func toEventRow(e *model.Event) *eventRow {
	return &eventRow{
		EventID:   e.EventID,
		Lat:       e.Latitude,
		Lon:       e.Longitude,
		Depth:     e.Depth,
		Magnitude: e.Magnitude,
		Time:      e.Time.UTC(),
		Sent:      e.Sent.UTC(),
	}
}

func (r *eventRow) toModel() *model.Event {
	return &model.Event{
		EventID:   r.EventID,
		Latitude:  r.Lat,
		Longitude: r.Lon,
		Depth:     r.Depth,
		Magnitude: r.Magnitude,
		Time:      r.Time.UTC(),
		Sent:      r.Sent.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r *detectorRow) toModel() *model.Detector {
	return &model.Detector{
		Name:      r.Name,
		Latitude:  r.Lat,
		Longitude: r.Lon,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func toPredictionRow(p *model.Prediction) *predictionRow {
	return &predictionRow{
		EventID:   p.EventID,
		Detector:  p.Detector,
		Distance:  p.Distance,
		P:         p.P.UTC(),
		S:         p.S.UTC(),
		R2p0:      p.R2p0.UTC(),
		R3p5:      p.R3p5.UTC(),
		R5p0:      p.R5p0.UTC(),
		Amplitude: p.Amplitude,
		Lockloss:  p.Lockloss,
	}
}

func (r *predictionRow) toModel() *model.Prediction {
	return &model.Prediction{
		EventID:   r.EventID,
		Detector:  r.Detector,
		Distance:  r.Distance,
		P:         r.P.UTC(),
		S:         r.S.UTC(),
		R2p0:      r.R2p0.UTC(),
		R3p5:      r.R3p5.UTC(),
		R5p0:      r.R5p0.UTC(),
		Amplitude: r.Amplitude,
		Lockloss:  r.Lockloss,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
