package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ligovirgo/seismon/internal/events"
	"github.com/ligovirgo/seismon/internal/metrics"
	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

// ScanOptions configures a Scanner.
type ScanOptions struct {
	Root     string
	Lookback time.Duration // events with origin time before now-Lookback are discarded
	Force    bool          // ignore sentinel markers

	EQXML   Parser           // default EQXMLParser
	QuakeML Parser           // default QuakeMLParser
	Now     func() time.Time // default time.Now
}

// ScanResult tallies the outcome of one scan.
type ScanResult struct {
	Partitions int      // partitions visited
	Skipped    int      // already marked with a sentinel
	Empty      int      // no report file present
	Malformed  int      // report unreadable or missing required fields
	Stale      int      // origin time outside the lookback window
	Duplicates int      // event already recorded
	Ingested   []string // event ids recorded by this scan
}

// Scanner walks the feed and records new events.
type Scanner struct {
	opts      ScanOptions
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewScanner creates a Scanner over opts.Root.
func NewScanner(s store.Store, pub events.Publisher, opts ScanOptions, logger *slog.Logger) *Scanner {
	if opts.EQXML == nil {
		opts.EQXML = EQXMLParser{}
	}
	if opts.QuakeML == nil {
		opts.QuakeML = QuakeMLParser{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		opts:      opts,
		store:     s,
		publisher: pub,
		logger:    logger.With("component", "feed"),
	}
}

// WithForce returns a copy of the scanner with the Force option set.
func (s *Scanner) WithForce(force bool) *Scanner {
	c := *s
	c.opts.Force = force
	return &c
}

// Scan visits every partition under the feed root in lexical order. Reports
// that cannot be turned into events are isolated to their partition; storage
// errors end the scan, keeping rows already committed.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	cutoff := s.opts.Now().Add(-s.opts.Lookback)

	eventDirs, err := os.ReadDir(s.opts.Root)
	if err != nil {
		return res, fmt.Errorf("read feed root: %w", err)
	}

	for _, ed := range eventDirs {
		if !ed.IsDir() {
			continue
		}
		eventName := ed.Name()
		dataDir := filepath.Join(s.opts.Root, eventName, partitionPrefix(eventName))
		partitions, err := os.ReadDir(dataDir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("cannot list event directory", "event", eventName, "err", err)
			}
			continue
		}

		for _, pd := range partitions {
			if !pd.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Partitions++
			if err := s.scanPartition(ctx, eventName, filepath.Join(dataDir, pd.Name()), cutoff, &res); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (s *Scanner) scanPartition(ctx context.Context, eventName, dir string, cutoff time.Time, res *ScanResult) error {
	log := s.logger.With("event", eventName, "partition", filepath.Base(dir))
	sentinel := filepath.Join(dir, SentinelFile)

	if !s.opts.Force {
		if _, err := os.Stat(sentinel); err == nil {
			res.Skipped++
			metrics.FeedPartitions.WithLabelValues("skipped").Inc()
			return nil
		}
	}

	if err := os.WriteFile(sentinel, []byte(SentinelContent), 0o644); err != nil {
		log.Warn("cannot write sentinel", "err", err)
	}

	attrs, found, err := s.parse(dir, eventName)
	if !found {
		res.Empty++
		metrics.FeedPartitions.WithLabelValues("empty").Inc()
		return nil
	}
	if err == nil && attrs == nil {
		err = errors.New("report holds no event")
	}
	if err == nil {
		err = attrs.Validate()
	}
	if err != nil {
		res.Malformed++
		metrics.FeedPartitions.WithLabelValues("malformed").Inc()
		log.Warn("skipping partition", "err", fmt.Errorf("%w: %w", ErrMalformedReport, err))
		return nil
	}

	event := model.EventFromAttributes(attrs)
	if event.Time.Before(cutoff) {
		res.Stale++
		metrics.FeedPartitions.WithLabelValues("stale").Inc()
		return nil
	}

	exists, err := s.store.EventExists(ctx, event.EventID)
	if err != nil {
		unmark(log, sentinel)
		return fmt.Errorf("check event %s: %w", event.EventID, err)
	}
	inserted := false
	if !exists {
		err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
			var err error
			inserted, err = tx.CreateEvent(ctx, event)
			return err
		})
		if err != nil {
			unmark(log, sentinel)
			return fmt.Errorf("record event %s: %w", event.EventID, err)
		}
	}
	if !inserted {
		res.Duplicates++
		metrics.FeedPartitions.WithLabelValues("duplicate").Inc()
		return nil
	}

	res.Ingested = append(res.Ingested, event.EventID)
	metrics.FeedPartitions.WithLabelValues("ingested").Inc()
	metrics.EventsIngested.Inc()
	log.Info("ingested event", "magnitude", event.Magnitude, "time", event.Time)

	if err := s.publisher.Publish(ctx, events.TopicEventIngested, events.EventIngested{Event: event}); err != nil {
		log.Warn("publish failed", "topic", events.TopicEventIngested, "err", err)
	}
	return nil
}

// unmark removes the sentinel of a partition whose event could not be
// recorded, so a later scan reads it again.
func unmark(log *slog.Logger, sentinel string) {
	if err := os.Remove(sentinel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("cannot remove sentinel", "err", err)
	}
}

// parse reads the preferred report format present in dir. found is false
// when neither file exists.
func (s *Scanner) parse(dir, eventName string) (attrs *model.Attributes, found bool, err error) {
	for _, c := range []struct {
		file   string
		parser Parser
	}{
		{EQXMLFile, s.opts.EQXML},
		{QuakeMLFile, s.opts.QuakeML},
	} {
		p := filepath.Join(dir, c.file)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		attrs, err := c.parser.Parse(p, eventName)
		return attrs, true, err
	}
	return nil, false, nil
}
