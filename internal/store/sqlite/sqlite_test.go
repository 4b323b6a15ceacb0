package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "seismon.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var origin = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func event(id string, at time.Time) *model.Event {
	return &model.Event{EventID: id, Latitude: 34, Longitude: -118, Depth: 10, Magnitude: 5, Time: at, Sent: at}
}

func prediction(eventID, detector string) *model.Prediction {
	return &model.Prediction{
		EventID: eventID, Detector: detector, Distance: 1500,
		P: origin.Add(3 * time.Minute), S: origin.Add(5 * time.Minute),
		R2p0: origin.Add(12 * time.Minute), R3p5: origin.Add(7 * time.Minute), R5p0: origin.Add(5 * time.Minute),
		Amplitude: 2e-6,
	}
}

func TestCreateEvent_InsertIfAbsent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	ok, err := s.CreateEvent(ctx, event("us1", origin))
	if err != nil || !ok {
		t.Fatalf("first CreateEvent = %v, %v; want true, nil", ok, err)
	}
	dup := event("us1", origin)
	dup.Magnitude = 7
	ok, err = s.CreateEvent(ctx, dup)
	if err != nil || ok {
		t.Fatalf("second CreateEvent = %v, %v; want false, nil", ok, err)
	}

	got, err := s.GetEvent(ctx, "us1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Magnitude != 5 {
		t.Errorf("Magnitude = %v, want the first write (5)", got.Magnitude)
	}
	if !got.Time.Equal(origin) || got.Time.Location() != time.UTC {
		t.Errorf("Time = %v, want %v UTC", got.Time, origin)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	s := setupStore(t)
	if _, err := s.GetEvent(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestListEvents_SinceAndOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	for _, e := range []*model.Event{
		event("late", origin.Add(2*time.Hour)),
		event("old", origin.Add(-48*time.Hour)),
		event("early", origin),
	} {
		if _, err := s.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent(%s): %v", e.EventID, err)
		}
	}

	events, err := s.ListEvents(ctx, store.EventFilter{Since: origin.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].EventID != "early" || events[1].EventID != "late" {
		t.Fatalf("unexpected events: %+v", events)
	}

	limited, err := s.ListEvents(ctx, store.EventFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(limited) != 1 || limited[0].EventID != "old" {
		t.Fatalf("unexpected limited events: %+v", limited)
	}

	newest, err := s.ListEvents(ctx, store.EventFilter{Limit: 2, Descending: true})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(newest) != 2 || newest[0].EventID != "late" || newest[1].EventID != "early" {
		t.Fatalf("unexpected newest events: %+v", newest)
	}
}

func TestDetectors(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, name := range []string{"LLO", "LHO", "LHO"} {
		if _, err := s.AddDetector(ctx, &model.Detector{Name: name, Latitude: 1, Longitude: 2}); err != nil {
			t.Fatalf("AddDetector(%s): %v", name, err)
		}
	}
	dets, err := s.ListDetectors(ctx)
	if err != nil {
		t.Fatalf("ListDetectors: %v", err)
	}
	if len(dets) != 2 || dets[0].Name != "LHO" || dets[1].Name != "LLO" {
		t.Fatalf("unexpected detectors: %+v", dets)
	}
}

func TestPredictions_AtMostOnce(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	key := model.PredictionKey{EventID: "us1", Detector: "LHO"}
	_, _ = s.CreateEvent(ctx, event("us1", origin))
	_, _ = s.AddDetector(ctx, &model.Detector{Name: "LHO"})

	has, err := s.HasPrediction(ctx, key)
	if err != nil || has {
		t.Fatalf("HasPrediction before insert = %v, %v", has, err)
	}
	ok, err := s.InsertPrediction(ctx, prediction("us1", "LHO"))
	if err != nil || !ok {
		t.Fatalf("InsertPrediction = %v, %v; want true, nil", ok, err)
	}
	again := prediction("us1", "LHO")
	again.Amplitude = 1
	ok, err = s.InsertPrediction(ctx, again)
	if err != nil || ok {
		t.Fatalf("second InsertPrediction = %v, %v; want false, nil", ok, err)
	}

	got, err := s.GetPrediction(ctx, key)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got.Amplitude != 2e-6 {
		t.Errorf("Amplitude = %v, want first write", got.Amplitude)
	}
	if !got.P.Equal(origin.Add(3 * time.Minute)) {
		t.Errorf("P = %v", got.P)
	}

	all, err := s.ListPredictions(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListPredictions = %d rows, %v", len(all), err)
	}
	if _, err := s.GetPrediction(ctx, model.PredictionKey{EventID: "us1", Detector: "LLO"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}

func TestPredictions_ForeignKeys(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, _ = s.CreateEvent(ctx, event("us1", origin))
	_, _ = s.AddDetector(ctx, &model.Detector{Name: "LHO"})

	tests := []struct {
		name     string
		eventID  string
		detector string
	}{
		{"unknown event", "nope", "LHO"},
		{"unknown detector", "us1", "VIRGO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ok, err := s.InsertPrediction(ctx, prediction(tt.eventID, tt.detector)); err == nil {
				t.Fatalf("InsertPrediction(%s, %s) = %v, nil; want foreign key error", tt.eventID, tt.detector, ok)
			}
		})
	}
	all, err := s.ListPredictions(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("ListPredictions = %d rows, %v; want none", len(all), err)
	}
}

func TestWithForeignKeys(t *testing.T) {
	tests := []struct {
		dsn, want string
	}{
		{"/tmp/a.sqlite", "/tmp/a.sqlite?_pragma=foreign_keys(1)"},
		{"file:a.sqlite?cache=shared", "file:a.sqlite?cache=shared&_pragma=foreign_keys(1)"},
		{"a.sqlite?_pragma=foreign_keys(0)", "a.sqlite?_pragma=foreign_keys(0)"},
	}
	for _, tt := range tests {
		if got := withForeignKeys(tt.dsn); got != tt.want {
			t.Errorf("withForeignKeys(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestMissingPredictions(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, _ = s.CreateEvent(ctx, event("us2", origin.Add(time.Hour)))
	_, _ = s.CreateEvent(ctx, event("us1", origin))
	_, _ = s.AddDetector(ctx, &model.Detector{Name: "LHO"})
	_, _ = s.AddDetector(ctx, &model.Detector{Name: "LLO"})
	if _, err := s.InsertPrediction(ctx, prediction("us1", "LHO")); err != nil {
		t.Fatalf("InsertPrediction: %v", err)
	}

	keys, err := s.MissingPredictions(ctx)
	if err != nil {
		t.Fatalf("MissingPredictions: %v", err)
	}
	want := []model.PredictionKey{
		{EventID: "us1", Detector: "LLO"},
		{EventID: "us2", Detector: "LHO"},
		{EventID: "us2", Detector: "LLO"},
	}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, _ = s.CreateEvent(ctx, event("us1", origin))
	_, _ = s.AddDetector(ctx, &model.Detector{Name: "LHO"})
	if _, err := s.InsertPrediction(ctx, prediction("us1", "LHO")); err != nil {
		t.Fatalf("InsertPrediction: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	events, _ := s.ListEvents(ctx, store.EventFilter{})
	dets, _ := s.ListDetectors(ctx)
	if len(events) != 0 || len(dets) != 0 {
		t.Fatalf("expected empty store after reset, got %d events, %d detectors", len(events), len(dets))
	}
}

func TestRunInTransaction(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	wantErr := errors.New("abort")
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.CreateEvent(ctx, event("rolled-back", origin)); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if ok, _ := s.EventExists(ctx, "rolled-back"); ok {
		t.Error("event written inside a failed transaction must not persist")
	}

	err = s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.Reset(ctx); err == nil {
			t.Error("expected Reset to be refused inside a transaction")
		}
		_, err := tx.CreateEvent(ctx, event("committed", origin))
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if ok, _ := s.EventExists(ctx, "committed"); !ok {
		t.Error("committed event missing")
	}
}
