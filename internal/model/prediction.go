package model

import "time"

// PredictionKey identifies the (event, detector) pair a prediction belongs to.
type PredictionKey struct {
	EventID  string `json:"event_id" db:"event_id"`
	Detector string `json:"detector" db:"detector"`
}

// String renders the key as "event/detector".
func (k PredictionKey) String() string {
	return k.EventID + "/" + k.Detector
}

// Prediction holds the derived arrival times and ground-motion estimate for
// one (event, detector) pair. At most one row exists per pair and it is
// never recomputed once written.
type Prediction struct {
	EventID   string    `json:"event_id" db:"event_id"`
	Detector  string    `json:"detector" db:"detector"`
	Distance  float64   `json:"distance" db:"distance"` // km
	P         time.Time `json:"p" db:"p"`
	S         time.Time `json:"s" db:"s"`
	R2p0      time.Time `json:"r2p0" db:"r2p0"` // 2.0 km/s surface wave
	R3p5      time.Time `json:"r3p5" db:"r3p5"` // 3.5 km/s surface wave
	R5p0      time.Time `json:"r5p0" db:"r5p0"` // 5.0 km/s surface wave
	Amplitude float64   `json:"amplitude" db:"amplitude"` // m/s
	Lockloss  bool      `json:"lockloss" db:"lockloss"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Key returns the pair key of the prediction.
func (p *Prediction) Key() PredictionKey {
	return PredictionKey{EventID: p.EventID, Detector: p.Detector}
}
