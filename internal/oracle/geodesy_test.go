package oracle

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	for _, tc := range []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tol              float64
	}{
		{"Same point", 46.6475, -119.5986, 46.6475, -119.5986, 0, 0},
		{"One degree along equator", 0, 0, 0, 1, 111319.4908, 1e-3},
		{"Quarter meridian", 0, 0, 90, 0, 10001965.729, 1},
		{"Symmetric", 0, 1, 0, 0, 111319.4908, 1e-3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := Distance(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > tc.tol {
				t.Errorf("Distance = %.4f, want %.4f ± %g", got, tc.want, tc.tol)
			}
		})
	}
}

func TestDistance_NearlyAntipodal(t *testing.T) {
	got := Distance(0, 0, 0.5, 179.7)
	half := math.Pi * earthRadius
	if math.IsNaN(got) || math.Abs(got-half)/half > 0.01 {
		t.Errorf("Distance = %.1f, want about %.1f", got, half)
	}
}

func TestHaversineAgreesWithVincenty(t *testing.T) {
	v, ok := vincenty(34, -118, 46.6475, -119.5986)
	if !ok {
		t.Fatal("vincenty did not converge")
	}
	h := haversine(34, -118, 46.6475, -119.5986)
	if math.Abs(v-h)/v > 0.005 {
		t.Errorf("vincenty %.0f and haversine %.0f differ by more than 0.5%%", v, h)
	}
}

func TestDegrees(t *testing.T) {
	if got := Degrees(math.Pi * earthRadius); math.Abs(got-180) > 1e-9 {
		t.Errorf("Degrees(half circumference) = %v, want 180", got)
	}
	if got := Degrees(0); got != 0 {
		t.Errorf("Degrees(0) = %v", got)
	}
}
