// Package registry holds the table of detectors predictions are computed
// for. The table is seeded once at bootstrap and read through a short-lived
// cache afterwards.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

// Builtin is the default detector catalogue.
var Builtin = []model.Detector{
	{Name: "LHO", Latitude: 46.6475, Longitude: -119.5986},
	{Name: "LLO", Latitude: 30.4986, Longitude: -90.7483},
	{Name: "GEO", Latitude: 52.246944, Longitude: 9.80833},
	{Name: "VIRGO", Latitude: 43.631389, Longitude: 10.505},
	{Name: "KAGRA", Latitude: 36.4119, Longitude: 137.3058},
}

// DefaultTTL bounds how long a detector listing is served from memory.
const DefaultTTL = time.Minute

const detectorsKey = "detectors"

type catalogueFile struct {
	Detectors []model.Detector `yaml:"detectors"`
}

// LoadCatalogue reads a YAML detector catalogue:
//
//	detectors:
//	  - name: LHO
//	    lat: 46.6475
//	    lon: -119.5986
func LoadCatalogue(path string) ([]model.Detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalogue %s: %w", path, err)
	}
	if len(f.Detectors) == 0 {
		return nil, fmt.Errorf("catalogue %s: no detectors", path)
	}
	seen := make(map[string]bool, len(f.Detectors))
	for i, d := range f.Detectors {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("catalogue %s: detector %d has no name", path, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("catalogue %s: duplicate detector %q", path, name)
		}
		if d.Latitude < -90 || d.Latitude > 90 || d.Longitude < -180 || d.Longitude > 360 {
			return nil, fmt.Errorf("catalogue %s: detector %q has invalid coordinates", path, name)
		}
		seen[name] = true
		f.Detectors[i].Name = name
	}
	return f.Detectors, nil
}

// Registry reads and seeds detectors through a store.
type Registry struct {
	store  store.Store
	cache  *cache.Cache
	logger *slog.Logger
}

// New creates a Registry whose listings are cached for ttl.
func New(s store.Store, ttl time.Duration, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.With("component", "registry"),
	}
}

// Seed inserts the given detectors in one transaction, leaving existing rows
// untouched, and returns how many were added.
func (r *Registry) Seed(ctx context.Context, detectors []model.Detector) (int, error) {
	added := 0
	err := r.store.RunInTransaction(ctx, func(tx store.Store) error {
		added = 0
		for _, d := range detectors {
			ok, err := tx.AddDetector(ctx, &d)
			if err != nil {
				return fmt.Errorf("add detector %s: %w", d.Name, err)
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed detectors: %w", err)
	}
	r.Invalidate()
	r.logger.Info("detectors seeded", "added", added, "total", len(detectors))
	return added, nil
}

// Detectors returns every detector ordered by name.
func (r *Registry) Detectors(ctx context.Context) ([]*model.Detector, error) {
	if v, ok := r.cache.Get(detectorsKey); ok {
		return v.([]*model.Detector), nil
	}
	detectors, err := r.store.ListDetectors(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(detectorsKey, detectors)
	return detectors, nil
}

// Invalidate drops the cached listing.
func (r *Registry) Invalidate() {
	r.cache.Delete(detectorsKey)
}
