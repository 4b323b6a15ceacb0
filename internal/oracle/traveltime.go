package oracle

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ligovirgo/seismon/internal/metrics"
)

// Surface-wave group velocities in metres per second.
const (
	surfaceSlow   = 2000.0
	surfaceMedium = 3500.0
	surfaceFast   = 5000.0
)

// Arrival is one phase arrival returned by a TravelTimeModel.
type Arrival struct {
	Phase string  // e.g. "P", "Pn", "S", "Sdiff"
	Time  float64 // seconds after origin
}

// TravelTimeModel predicts body-wave arrivals for a source depth (km) and an
// angular distance (degrees).
type TravelTimeModel interface {
	Arrivals(depthKm, degrees float64) ([]Arrival, error)
}

// TravelTimes holds the arrival estimates for one (event, detector) pair.
type TravelTimes struct {
	Distance float64 // km
	P        time.Time
	S        time.Time
	R2p0     time.Time
	R3p5     time.Time
	R5p0     time.Time
	Fallback bool // P and S were replaced by R2p0
}

// Position is a point on the Earth's surface in degrees.
type Position struct {
	Latitude  float64
	Longitude float64
}

// TravelTimeOracle combines the geodesic distance, fixed-speed surface waves
// and a body-wave model.
type TravelTimeOracle struct {
	model  TravelTimeModel
	logger *slog.Logger
}

func NewTravelTimeOracle(m TravelTimeModel, logger *slog.Logger) *TravelTimeOracle {
	if m == nil {
		m = TabulatedModel{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TravelTimeOracle{model: m, logger: logger.With("component", "traveltime")}
}

// Compute never fails: when the body-wave model errors or lacks a P or S
// phase, both are set to the slowest surface-wave arrival and Fallback is
// reported.
func (o *TravelTimeOracle) Compute(depthKm float64, origin time.Time, event, detector Position) TravelTimes {
	metres := Distance(event.Latitude, event.Longitude, detector.Latitude, detector.Longitude)
	tt := TravelTimes{
		Distance: metres / 1000,
		R2p0:     origin.Add(seconds(metres / surfaceSlow)),
		R3p5:     origin.Add(seconds(metres / surfaceMedium)),
		R5p0:     origin.Add(seconds(metres / surfaceFast)),
	}

	p, s, err := o.bodyWaves(depthKm, Degrees(metres))
	if err != nil {
		o.logger.Warn("travel-time model failed, using surface-wave arrival",
			"depth_km", depthKm, "distance_km", tt.Distance, "err", err)
		metrics.TravelTimeFallbacks.Inc()
		tt.P, tt.S, tt.Fallback = tt.R2p0, tt.R2p0, true
		return tt
	}
	tt.P = origin.Add(seconds(p))
	tt.S = origin.Add(seconds(s))
	return tt
}

// bodyWaves returns the first P-family and first S-family arrival.
func (o *TravelTimeOracle) bodyWaves(depthKm, degrees float64) (p, s float64, err error) {
	arrivals, err := o.model.Arrivals(depthKm, degrees)
	if err != nil {
		return 0, 0, err
	}
	p, s = math.Inf(1), math.Inf(1)
	for _, a := range arrivals {
		switch {
		case strings.HasPrefix(strings.ToUpper(a.Phase), "P"):
			p = math.Min(p, a.Time)
		case strings.HasPrefix(strings.ToUpper(a.Phase), "S"):
			s = math.Min(s, a.Time)
		}
	}
	if math.IsInf(p, 1) {
		return 0, 0, fmt.Errorf("no P arrival at %.2f°", degrees)
	}
	if math.IsInf(s, 1) {
		return 0, 0, fmt.Errorf("no S arrival at %.2f°", degrees)
	}
	return p, s, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// TabulatedModel interpolates surface-focus P and S travel times tabulated
// every 10° out to 100° and applies a straight-ray depth correction.
type TabulatedModel struct{}

const (
	tableStep  = 10.0
	maxDegrees = 100.0
	maxDepthKm = 700.0
	mantleVP   = 8.0 // km/s
	mantleVS   = 4.5 // km/s
)

var (
	pTable = []float64{0, 150, 275, 372, 457, 535, 605, 667, 722, 772, 815}
	sTable = []float64{0, 265, 495, 670, 820, 960, 1090, 1210, 1315, 1410, 1480}
)

func (TabulatedModel) Arrivals(depthKm, degrees float64) ([]Arrival, error) {
	if depthKm < 0 || depthKm > maxDepthKm || math.IsNaN(depthKm) {
		return nil, fmt.Errorf("depth %.1f km: %w", depthKm, ErrUnsupported)
	}
	if degrees < 0 || degrees > maxDegrees || math.IsNaN(degrees) {
		return nil, fmt.Errorf("distance %.2f°: %w", degrees, ErrUnsupported)
	}
	return []Arrival{
		{Phase: "P", Time: depthCorrected(interpolate(pTable, degrees), depthKm, mantleVP)},
		{Phase: "S", Time: depthCorrected(interpolate(sTable, degrees), depthKm, mantleVS)},
	}, nil
}

func interpolate(table []float64, degrees float64) float64 {
	i := int(degrees / tableStep)
	if i >= len(table)-1 {
		return table[len(table)-1]
	}
	frac := (degrees - float64(i)*tableStep) / tableStep
	return table[i] + frac*(table[i+1]-table[i])
}

// depthCorrected shortens a surface-focus time by the vertical leg the ray
// no longer travels, but never below the direct vertical time.
func depthCorrected(t, depthKm, velocity float64) float64 {
	leg := depthKm / velocity
	return math.Max(t-leg, leg)
}
