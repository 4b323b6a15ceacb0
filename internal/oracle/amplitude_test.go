package oracle

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ligovirgo/seismon/internal/model"
)

var truth = coefficients{3, 1.0, -1.5, -0.002}

var lhoDetector = &model.Detector{Name: "LHO", Latitude: 46.6475, Longitude: -119.5986}

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// writeCatalogue writes n rows whose peak follows truth exactly, plus a
// below-threshold row and an unparseable row that must both be ignored.
func writeCatalogue(t *testing.T, dir, name string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("time,latitude,longitude,depth,mag,peak_data_um_mean_subtracted\n")
	for i := 0; i < n; i++ {
		lat := -30 + float64(i*7%60)
		lon := -170 + float64(i*37%340)
		mag := 4.5 + float64(i%5)*0.5
		depth := 5 + float64(i*13%90)
		km := Distance(lat, lon, lhoDetector.Latitude, lhoDetector.Longitude) / 1000
		peak := math.Pow(10, truth[0]+truth[1]*mag+truth[2]*math.Log10(km)+truth[3]*depth)
		fmt.Fprintf(&b, "2024-01-01T00:00:00Z,%s,%s,%s,%s,%s\n", num(lat), num(lon), num(depth), num(mag), num(peak))
	}
	b.WriteString("2024-01-01T00:00:00Z,10,10,10,9.0,0.05\n")
	b.WriteString("2024-01-01T00:00:00Z,10,10,bad,9.0,100\n")
	if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
}

func TestDatasetFor(t *testing.T) {
	for _, tc := range []struct {
		detector, want string
	}{
		{"LLO", "LLO_processed_USGS_global_EQ_catalogue.csv"},
		{"llo", "LLO_processed_USGS_global_EQ_catalogue.csv"},
		{"LHO", "LHO_processed_USGS_global_EQ_catalogue.csv"},
		{"VIRGO", "LHO_processed_USGS_global_EQ_catalogue.csv"},
		{"KAGRA", "LHO_processed_USGS_global_EQ_catalogue.csv"},
	} {
		if got := DatasetFor(tc.detector); got != tc.want {
			t.Errorf("DatasetFor(%q) = %q, want %q", tc.detector, got, tc.want)
		}
	}
}

func TestRegressionModel_RecoversCoefficients(t *testing.T) {
	dir := t.TempDir()
	writeCatalogue(t, dir, DatasetFor("LHO"), 40)

	m := NewRegressionModel(dir, 0.1)
	c, err := m.coefficients(lhoDetector)
	if err != nil {
		t.Fatalf("coefficients: %v", err)
	}
	for i := range truth {
		if math.Abs(c[i]-truth[i]) > 1e-4 {
			t.Errorf("c[%d] = %v, want %v", i, c[i], truth[i])
		}
	}

	ev := &model.Event{Latitude: 34, Longitude: -118, Depth: 10, Magnitude: 5}
	got, err := m.Predict(lhoDetector, ev)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	km := Distance(34, -118, lhoDetector.Latitude, lhoDetector.Longitude) / 1000
	want := math.Pow(10, truth[0]+truth[1]*5+truth[2]*math.Log10(km)+truth[3]*10) * 1e-6
	if math.Abs(got-want)/want > 1e-3 {
		t.Errorf("Predict = %g m/s, want %g", got, want)
	}
}

func TestRegressionModel_CachesFit(t *testing.T) {
	dir := t.TempDir()
	writeCatalogue(t, dir, DatasetFor("LHO"), 20)

	m := NewRegressionModel(dir, 0)
	ev := &model.Event{Latitude: 34, Longitude: -118, Depth: 10, Magnitude: 5}
	first, err := m.Predict(lhoDetector, ev)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, DatasetFor("LHO"))); err != nil {
		t.Fatal(err)
	}
	second, err := m.Predict(lhoDetector, ev)
	if err != nil {
		t.Fatalf("Predict after removing catalogue: %v", err)
	}
	if first != second {
		t.Errorf("cached prediction changed: %g != %g", first, second)
	}
}

func TestRegressionModel_Errors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		setup   func(t *testing.T, dir string)
		wantErr error
		wantMsg string
	}{
		{
			name:    "Too few rows",
			setup:   func(t *testing.T, dir string) { writeCatalogue(t, dir, DatasetFor("LHO"), 3) },
			wantErr: ErrInsufficientData,
		},
		{
			name: "Missing column",
			setup: func(t *testing.T, dir string) {
				body := "latitude,longitude,depth,mag\n1,2,3,4\n"
				if err := os.WriteFile(filepath.Join(dir, DatasetFor("LHO")), []byte(body), 0o644); err != nil {
					t.Fatal(err)
				}
			},
			wantMsg: `missing column "peak_data_um_mean_subtracted"`,
		},
		{
			name:    "Missing file",
			setup:   func(*testing.T, string) {},
			wantErr: os.ErrNotExist,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			tc.setup(t, dir)
			_, err := NewRegressionModel(dir, 0.1).Predict(lhoDetector, &model.Event{Magnitude: 5})
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantMsg != "" && !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("err = %v, want it to contain %q", err, tc.wantMsg)
			}
		})
	}
}

func TestSolve_Singular(t *testing.T) {
	var a [4][4]float64
	a[0][0] = 1
	if _, err := solve(a, [4]float64{1}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

type fixedModel struct {
	v   float64
	err error
}

func (m fixedModel) Predict(*model.Detector, *model.Event) (float64, error) { return m.v, m.err }

func TestAmplitudeOracle(t *testing.T) {
	boom := errors.New("boom")
	for _, tc := range []struct {
		name         string
		model        fixedModel
		wantLockloss bool
		wantErr      bool
	}{
		{"Quiet", fixedModel{v: 5e-6}, false, false},
		{"At threshold", fixedModel{v: 10e-6}, false, false},
		{"Lockloss", fixedModel{v: 2e-5}, true, false},
		{"Model error", fixedModel{err: boom}, false, true},
		{"NaN", fixedModel{v: math.NaN()}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			amp, err := NewAmplitudeOracle(tc.model, 0).Compute(lhoDetector, &model.Event{})
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if amp.Value != tc.model.v || amp.Lockloss != tc.wantLockloss {
				t.Errorf("got %+v", amp)
			}
		})
	}
}
