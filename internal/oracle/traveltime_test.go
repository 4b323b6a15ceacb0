package oracle

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ligovirgo/seismon/internal/metrics"
)

var (
	origin = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	quake  = Position{Latitude: 34, Longitude: -118}
	lho    = Position{Latitude: 46.6475, Longitude: -119.5986}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type modelFunc func(depthKm, degrees float64) ([]Arrival, error)

func (f modelFunc) Arrivals(depthKm, degrees float64) ([]Arrival, error) { return f(depthKm, degrees) }

func TestTabulatedModel(t *testing.T) {
	for _, tc := range []struct {
		name           string
		depth, degrees float64
		wantP, wantS   float64
	}{
		{"Table point", 0, 10, 150, 265},
		{"Interpolated", 0, 15, 212.5, 380},
		{"Last entry", 0, 100, 815, 1480},
		{"Vertical only", 10, 0, 1.25, 10 / 4.5},
		{"Depth shortens", 80, 20, 265, 495 - 80/4.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			arrivals, err := TabulatedModel{}.Arrivals(tc.depth, tc.degrees)
			if err != nil {
				t.Fatalf("Arrivals: %v", err)
			}
			if len(arrivals) != 2 {
				t.Fatalf("got %d arrivals", len(arrivals))
			}
			if math.Abs(arrivals[0].Time-tc.wantP) > 1e-9 || math.Abs(arrivals[1].Time-tc.wantS) > 1e-9 {
				t.Errorf("P=%v S=%v, want P=%v S=%v", arrivals[0].Time, arrivals[1].Time, tc.wantP, tc.wantS)
			}
		})
	}
}

func TestTabulatedModel_Unsupported(t *testing.T) {
	for _, tc := range []struct {
		name           string
		depth, degrees float64
	}{
		{"Negative depth", -1, 10},
		{"Too deep", 701, 10},
		{"Too far", 10, 120},
		{"NaN distance", 10, math.NaN()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := TabulatedModel{}.Arrivals(tc.depth, tc.degrees)
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("err = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestTravelTimeOracle_Compute(t *testing.T) {
	o := NewTravelTimeOracle(nil, quietLogger())
	tt := o.Compute(10, origin, quake, lho)

	if tt.Fallback {
		t.Fatal("unexpected fallback")
	}
	if tt.Distance < 1300 || tt.Distance > 1500 {
		t.Errorf("Distance = %.1f km, want about 1420", tt.Distance)
	}
	if !tt.P.After(origin) || !tt.S.After(tt.P) {
		t.Errorf("P=%v S=%v not ordered after origin", tt.P, tt.S)
	}
	if tt.R5p0.After(tt.R3p5) || tt.R3p5.After(tt.R2p0) {
		t.Errorf("surface waves out of order: %v %v %v", tt.R5p0, tt.R3p5, tt.R2p0)
	}
	want := origin.Add(seconds(tt.Distance * 1000 / surfaceMedium))
	if d := tt.R3p5.Sub(want); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("R3p5 = %v, want %v", tt.R3p5, want)
	}
}

func TestTravelTimeOracle_Fallback(t *testing.T) {
	for _, tc := range []struct {
		name  string
		model TravelTimeModel
	}{
		{"Model error", modelFunc(func(float64, float64) ([]Arrival, error) {
			return nil, ErrUnsupported
		})},
		{"No S phase", modelFunc(func(float64, float64) ([]Arrival, error) {
			return []Arrival{{Phase: "Pn", Time: 120}}, nil
		})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.TravelTimeFallbacks)
			tt := NewTravelTimeOracle(tc.model, quietLogger()).Compute(10, origin, quake, lho)
			if !tt.Fallback {
				t.Fatal("expected fallback")
			}
			if !tt.P.Equal(tt.R2p0) || !tt.S.Equal(tt.R2p0) {
				t.Errorf("P=%v S=%v, want both %v", tt.P, tt.S, tt.R2p0)
			}
			if got := testutil.ToFloat64(metrics.TravelTimeFallbacks) - before; got != 1 {
				t.Errorf("fallback counter moved by %v, want 1", got)
			}
		})
	}
}

func TestTravelTimeOracle_FirstArrivalPerFamily(t *testing.T) {
	m := modelFunc(func(float64, float64) ([]Arrival, error) {
		return []Arrival{
			{Phase: "PcP", Time: 300},
			{Phase: "Pn", Time: 100},
			{Phase: "Sn", Time: 180},
			{Phase: "S", Time: 200},
		}, nil
	})
	tt := NewTravelTimeOracle(m, quietLogger()).Compute(10, origin, quake, lho)
	if got := tt.P.Sub(origin); got != 100*time.Second {
		t.Errorf("P offset = %v, want 100s", got)
	}
	if got := tt.S.Sub(origin); got != 180*time.Second {
		t.Errorf("S offset = %v, want 180s", got)
	}
}
