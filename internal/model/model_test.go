package model

import (
	"errors"
	"testing"
	"time"
)

func float(v float64) *float64 { return &v }

func TestAttributesValidate(t *testing.T) {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		name      string
		attrs     Attributes
		wantErr   bool
		wantField string
	}{
		{
			name: "Complete",
			attrs: Attributes{EventName: "us7000abcd", Latitude: float(34), Longitude: float(-118),
				Depth: 10, Magnitude: float(5), Time: origin, Sent: origin.Add(time.Minute)},
		},
		{
			name:      "MissingName",
			attrs:     Attributes{Latitude: float(34), Longitude: float(-118), Magnitude: float(5), Time: origin},
			wantErr:   true,
			wantField: "event_name",
		},
		{
			name:      "MissingCoordinates",
			attrs:     Attributes{EventName: "x", Magnitude: float(5), Time: origin},
			wantErr:   true,
			wantField: "coordinates",
		},
		{
			name:      "MissingMagnitude",
			attrs:     Attributes{EventName: "x", Latitude: float(1), Longitude: float(2), Time: origin},
			wantErr:   true,
			wantField: "magnitude",
		},
		{
			name:      "MissingTime",
			attrs:     Attributes{EventName: "x", Latitude: float(1), Longitude: float(2), Magnitude: float(3)},
			wantErr:   true,
			wantField: "time",
		},
		{
			name:      "LatitudeOutOfRange",
			attrs:     Attributes{EventName: "x", Latitude: float(91), Longitude: float(2), Magnitude: float(3), Time: origin},
			wantErr:   true,
			wantField: "latitude",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.attrs.Validate()
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("expected ErrMissingField in chain, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			found := false
			for _, fe := range ve.Errors {
				if fe.Field == tc.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected field %q in %v", tc.wantField, ve.Errors)
			}
		})
	}
}

func TestAttributesValidate_DefaultsSent(t *testing.T) {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Attributes{EventName: "x", Latitude: float(1), Longitude: float(2), Magnitude: float(3), Time: origin}
	if err := a.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Sent.Equal(origin) {
		t.Errorf("Sent = %v, want %v", a.Sent, origin)
	}
}

func TestEventFromAttributes(t *testing.T) {
	origin := time.Date(2024, 1, 1, 3, 0, 0, 0, time.FixedZone("X", 3600))
	a := &Attributes{EventName: "us7000abcd", Latitude: float(34), Longitude: float(-118),
		Depth: 10, Magnitude: float(5), Time: origin, Sent: origin}
	ev := EventFromAttributes(a)
	if ev.EventID != "us7000abcd" || ev.Latitude != 34 || ev.Longitude != -118 || ev.Depth != 10 || ev.Magnitude != 5 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Time.Location() != time.UTC {
		t.Errorf("Time not normalised to UTC: %v", ev.Time)
	}
	if !ev.Time.Equal(origin) {
		t.Errorf("Time = %v, want %v", ev.Time, origin)
	}
}

func TestPredictionKey(t *testing.T) {
	p := &Prediction{EventID: "us1", Detector: "LHO"}
	if got := p.Key().String(); got != "us1/LHO" {
		t.Errorf("Key().String() = %q, want %q", got, "us1/LHO")
	}
}
