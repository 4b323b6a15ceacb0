// Package oracle computes the physical quantities stored with a prediction:
// geodesic distance, seismic phase arrival times and the expected ground
// velocity at a detector.
package oracle

import "errors"

var (
	// ErrUnsupported is returned by a travel-time model for a depth or
	// distance outside its tables.
	ErrUnsupported = errors.New("outside model range")

	// ErrInsufficientData is returned when an amplitude model cannot be
	// fitted from its training set.
	ErrInsufficientData = errors.New("insufficient training data")
)
