package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ligovirgo/seismon/internal/store"
	"github.com/ligovirgo/seismon/internal/store/sqlite"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "feed.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// report describes one feed partition fixture.
type report struct {
	event     string
	partition string
	file      string // EQXMLFile or QuakeMLFile
	body      string
}

func eqxmlBody(lat, lon, depth, mag float64, origin time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<EQMessage xmlns="http://www.usgs.gov/ansseqmsg">
  <Source>us</Source>
  <Sent>%s</Sent>
  <Event>
    <DataSource>us</DataSource>
    <EventID>7000abcd</EventID>
    <Origin>
      <Time>%s</Time>
      <Latitude>%g</Latitude>
      <Longitude>%g</Longitude>
      <Depth>%g</Depth>
      <Magnitude>
        <TypeKey>Mww</TypeKey>
        <Value>%g</Value>
      </Magnitude>
    </Origin>
  </Event>
</EQMessage>`, origin.Add(2*time.Minute).Format(time.RFC3339), origin.Format("2006-01-02T15:04:05.000Z"), lat, lon, depth, mag)
}

func quakemlBody(lat, lon, depthMetres, mag float64, origin time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<q:quakeml xmlns="http://quakeml.org/xmlns/bed/1.2" xmlns:q="http://quakeml.org/xmlns/quakeml/1.2">
  <eventParameters publicID="quakeml:us.anss.org/eventparameters/us7000abcd">
    <event publicID="quakeml:us.anss.org/event/us7000abcd">
      <preferredOriginID>quakeml:us.anss.org/origin/o2</preferredOriginID>
      <preferredMagnitudeID>quakeml:us.anss.org/magnitude/m2</preferredMagnitudeID>
      <origin publicID="quakeml:us.anss.org/origin/o1">
        <time><value>2000-01-01T00:00:00Z</value></time>
        <latitude><value>0</value></latitude>
        <longitude><value>0</value></longitude>
        <depth><value>0</value></depth>
      </origin>
      <origin publicID="quakeml:us.anss.org/origin/o2">
        <time><value>%s</value></time>
        <latitude><value>%g</value></latitude>
        <longitude><value>%g</value></longitude>
        <depth><value>%g</value></depth>
      </origin>
      <magnitude publicID="quakeml:us.anss.org/magnitude/m1"><mag><value>1.0</value></mag></magnitude>
      <magnitude publicID="quakeml:us.anss.org/magnitude/m2"><mag><value>%g</value></mag></magnitude>
      <creationInfo><creationTime>%s</creationTime></creationInfo>
    </event>
  </eventParameters>
</q:quakeml>`, origin.Format(time.RFC3339Nano), lat, lon, depthMetres, mag, origin.Add(time.Minute).Format(time.RFC3339))
}

// writeFeed lays out reports under a fresh feed root and returns the root.
func writeFeed(t *testing.T, reports ...report) string {
	t.Helper()
	root := t.TempDir()
	for _, r := range reports {
		dir := filepath.Join(root, r.event, partitionPrefix(r.event), r.partition)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if r.file == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, r.file), []byte(r.body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// recordingPublisher captures published payloads.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
