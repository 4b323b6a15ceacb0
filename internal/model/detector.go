package model

import "time"

// Detector is a fixed sensing station for which predictions are computed.
type Detector struct {
	Name      string    `json:"name" db:"name" yaml:"name"`
	Latitude  float64   `json:"lat" db:"lat" yaml:"lat"`
	Longitude float64   `json:"lon" db:"lon" yaml:"lon"`
	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at" yaml:"-"`
}
