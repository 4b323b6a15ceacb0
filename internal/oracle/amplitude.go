package oracle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/ligovirgo/seismon/internal/model"
)

const (
	// DefaultThreshold is the training-set floor on peak ground velocity, µm/s.
	DefaultThreshold = 0.1

	// DefaultLocklossThreshold is the ground velocity, m/s, above which a
	// detector is expected to lose lock.
	DefaultLocklossThreshold = 10e-6
)

// Training-set columns.
const (
	colLatitude  = "latitude"
	colLongitude = "longitude"
	colDepth     = "depth"
	colMagnitude = "mag"
	colPeak      = "peak_data_um_mean_subtracted"
)

const (
	lloDataset = "LLO_processed_USGS_global_EQ_catalogue.csv"
	lhoDataset = "LHO_processed_USGS_global_EQ_catalogue.csv"
)

// datasets maps detectors to their training file. Detectors without an
// entry use the LHO catalogue.
var datasets = map[string]string{
	"LLO":   lloDataset,
	"VIRGO": lhoDataset,
}

// DatasetFor returns the training file name for a detector.
func DatasetFor(detector string) string {
	if f, ok := datasets[strings.ToUpper(detector)]; ok {
		return f
	}
	return lhoDataset
}

// AmplitudeModel predicts the peak ground velocity, in m/s, an event causes
// at a detector.
type AmplitudeModel interface {
	Predict(detector *model.Detector, event *model.Event) (float64, error)
}

// Amplitude is the ground-motion estimate for one (event, detector) pair.
type Amplitude struct {
	Value    float64 // m/s
	Lockloss bool
}

// AmplitudeOracle applies the lockloss threshold to a model's prediction.
type AmplitudeOracle struct {
	model    AmplitudeModel
	lockloss float64
}

func NewAmplitudeOracle(m AmplitudeModel, locklossThreshold float64) *AmplitudeOracle {
	if locklossThreshold <= 0 {
		locklossThreshold = DefaultLocklossThreshold
	}
	return &AmplitudeOracle{model: m, lockloss: locklossThreshold}
}

func (o *AmplitudeOracle) Compute(detector *model.Detector, event *model.Event) (Amplitude, error) {
	v, err := o.model.Predict(detector, event)
	if err != nil {
		return Amplitude{}, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Amplitude{}, fmt.Errorf("amplitude model returned %v", v)
	}
	return Amplitude{Value: v, Lockloss: v > o.lockloss}, nil
}

// RegressionModel fits, per detector, an ordinary least squares model
//
//	log10(peak µm/s) = c0 + c1·mag + c2·log10(distance km) + c3·depth
//
// to the detector's training catalogue. Fitted coefficients are cached for
// the life of the process.
type RegressionModel struct {
	dir       string
	threshold float64
	fits      *cache.Cache
	group     singleflight.Group
}

// NewRegressionModel reads training files from dir. Rows with a peak below
// threshold (µm/s) are ignored.
func NewRegressionModel(dir string, threshold float64) *RegressionModel {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &RegressionModel{
		dir:       dir,
		threshold: threshold,
		fits:      cache.New(cache.NoExpiration, 0),
	}
}

type coefficients [4]float64

func (m *RegressionModel) Predict(detector *model.Detector, event *model.Event) (float64, error) {
	c, err := m.coefficients(detector)
	if err != nil {
		return 0, err
	}
	km := math.Max(Distance(event.Latitude, event.Longitude, detector.Latitude, detector.Longitude)/1000, 1)
	logPeak := c[0] + c[1]*event.Magnitude + c[2]*math.Log10(km) + c[3]*event.Depth
	return math.Pow(10, logPeak) * 1e-6, nil
}

func (m *RegressionModel) coefficients(detector *model.Detector) (coefficients, error) {
	file := filepath.Join(m.dir, DatasetFor(detector.Name))
	key := fmt.Sprintf("%s|%.6f|%.6f", file, detector.Latitude, detector.Longitude)
	if v, ok := m.fits.Get(key); ok {
		return v.(coefficients), nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		c, err := fit(file, detector.Latitude, detector.Longitude, m.threshold)
		if err != nil {
			return nil, err
		}
		m.fits.Set(key, c, cache.NoExpiration)
		return c, nil
	})
	if err != nil {
		return coefficients{}, fmt.Errorf("fit %s for %s: %w", filepath.Base(file), detector.Name, err)
	}
	return v.(coefficients), nil
}

// fit reads a training CSV and solves the normal equations.
func fit(path string, detLat, detLon, threshold float64) (coefficients, error) {
	f, err := os.Open(path)
	if err != nil {
		return coefficients{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return coefficients{}, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	cols := []string{colLatitude, colLongitude, colDepth, colMagnitude, colPeak}
	for _, c := range cols {
		if _, ok := idx[c]; !ok {
			return coefficients{}, fmt.Errorf("missing column %q", c)
		}
	}

	var xtx [4][4]float64
	var xty [4]float64
	n := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return coefficients{}, fmt.Errorf("read row: %w", err)
		}
		var v [5]float64
		ok := true
		for i, c := range cols {
			if v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[idx[c]]), 64); err != nil {
				ok = false
				break
			}
		}
		lat, lon, depth, mag, peak := v[0], v[1], v[2], v[3], v[4]
		if !ok || peak < threshold {
			continue
		}
		km := Distance(lat, lon, detLat, detLon) / 1000
		if km <= 0 {
			continue
		}
		x := [4]float64{1, mag, math.Log10(km), depth}
		y := math.Log10(peak)
		for i := range x {
			for j := range x {
				xtx[i][j] += x[i] * x[j]
			}
			xty[i] += x[i] * y
		}
		n++
	}
	if n < len(xty) {
		return coefficients{}, fmt.Errorf("%d usable rows: %w", n, ErrInsufficientData)
	}
	return solve(xtx, xty)
}

// solve runs Gaussian elimination with partial pivoting on a 4×4 system.
func solve(a [4][4]float64, b [4]float64) (coefficients, error) {
	const eps = 1e-12
	for col := 0; col < 4; col++ {
		pivot := col
		for row := col + 1; row < 4; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < eps {
			return coefficients{}, fmt.Errorf("singular system: %w", ErrInsufficientData)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for row := col + 1; row < 4; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < 4; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}
	var c coefficients
	for row := 3; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < 4; k++ {
			sum -= a[row][k] * c[k]
		}
		c[row] = sum / a[row][row]
	}
	return c, nil
}
