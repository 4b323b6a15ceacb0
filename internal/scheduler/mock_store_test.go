package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

// mockStore is a minimal in-memory store for scheduler tests.
type mockStore struct {
	mu          sync.Mutex
	events      map[string]*model.Event
	detectors   map[string]*model.Detector
	predictions map[model.PredictionKey]*model.Prediction
	resets      int
	resetErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		events:      make(map[string]*model.Event),
		detectors:   make(map[string]*model.Detector),
		predictions: make(map[model.PredictionKey]*model.Prediction),
	}
}

func (m *mockStore) CreateEvent(_ context.Context, event *model.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.EventID]; ok {
		return false, nil
	}
	cp := *event
	cp.CreatedAt = time.Now().UTC()
	m.events[event.EventID] = &cp
	return true, nil
}

func (m *mockStore) GetEvent(_ context.Context, eventID string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockStore) EventExists(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *mockStore) ListEvents(_ context.Context, filter store.EventFilter) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Event
	for _, e := range m.events {
		if !filter.Since.IsZero() && e.Time.Before(filter.Since) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if filter.Descending {
			a, b = b, a
		}
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.EventID < b.EventID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) AddDetector(_ context.Context, detector *model.Detector) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.detectors[detector.Name]; ok {
		return false, nil
	}
	cp := *detector
	m.detectors[detector.Name] = &cp
	return true, nil
}

func (m *mockStore) ListDetectors(_ context.Context) ([]*model.Detector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Detector
	for _, d := range m.detectors {
		cp := *d
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockStore) HasPrediction(_ context.Context, key model.PredictionKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.predictions[key]
	return ok, nil
}

func (m *mockStore) InsertPrediction(_ context.Context, prediction *model.Prediction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.predictions[prediction.Key()]; ok {
		return false, nil
	}
	cp := *prediction
	cp.CreatedAt = time.Now().UTC()
	m.predictions[prediction.Key()] = &cp
	return true, nil
}

func (m *mockStore) GetPrediction(_ context.Context, key model.PredictionKey) (*model.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.predictions[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) PredictionsForEvent(ctx context.Context, eventID string) ([]*model.Prediction, error) {
	all, _ := m.ListPredictions(ctx)
	var result []*model.Prediction
	for _, p := range all {
		if p.EventID == eventID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockStore) ListPredictions(_ context.Context) ([]*model.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Prediction
	for _, p := range m.predictions {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EventID != result[j].EventID {
			return result[i].EventID < result[j].EventID
		}
		return result[i].Detector < result[j].Detector
	})
	return result, nil
}

func (m *mockStore) MissingPredictions(ctx context.Context) ([]model.PredictionKey, error) {
	events, _ := m.ListEvents(ctx, store.EventFilter{})
	detectors, _ := m.ListDetectors(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []model.PredictionKey
	for _, e := range events {
		for _, d := range detectors {
			k := model.PredictionKey{EventID: e.EventID, Detector: d.Name}
			if _, ok := m.predictions[k]; !ok {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (m *mockStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resets++
	m.events = make(map[string]*model.Event)
	m.detectors = make(map[string]*model.Detector)
	m.predictions = make(map[model.PredictionKey]*model.Prediction)
	return nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error {
	return nil
}
