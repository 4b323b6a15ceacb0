package model

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingField is returned (wrapped in a *ValidationError) when parsed
// report attributes lack a required field.
var ErrMissingField = errors.New("missing required field")

// Attributes is the structured output of an event report parser. Optional
// numeric fields are pointers so a missing value can be told apart from zero.
type Attributes struct {
	EventName string
	Latitude  *float64
	Longitude *float64
	Depth     float64 // km
	Magnitude *float64
	Time      time.Time
	Sent      time.Time
}

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrMissingField.
func (e *ValidationError) Unwrap() error {
	return ErrMissingField
}

// Validate checks that the attributes carry everything needed to record an
// event: a name, coordinates, a magnitude and an origin time. A missing sent
// time is filled with the origin time.
func (a *Attributes) Validate() error {
	var ve ValidationError
	if strings.TrimSpace(a.EventName) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "event_name", Message: "is required"})
	}
	if a.Latitude == nil || a.Longitude == nil {
		ve.Errors = append(ve.Errors, FieldError{Field: "coordinates", Message: "are required"})
	} else {
		if *a.Latitude < -90 || *a.Latitude > 90 {
			ve.Errors = append(ve.Errors, FieldError{Field: "latitude", Message: "must be within [-90, 90]"})
		}
		if *a.Longitude < -180 || *a.Longitude > 360 {
			ve.Errors = append(ve.Errors, FieldError{Field: "longitude", Message: "must be within [-180, 360]"})
		}
	}
	if a.Magnitude == nil {
		ve.Errors = append(ve.Errors, FieldError{Field: "magnitude", Message: "is required"})
	}
	if a.Time.IsZero() {
		ve.Errors = append(ve.Errors, FieldError{Field: "time", Message: "is required"})
	}
	if len(ve.Errors) > 0 {
		return &ve
	}
	if a.Sent.IsZero() {
		a.Sent = a.Time
	}
	return nil
}
