package feed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ligovirgo/seismon/internal/metrics"
)

// DefaultRetention is the age after which feed directories are removed.
const DefaultRetention = 7 * 24 * time.Hour

// PurgeOptions configures a Purger.
type PurgeOptions struct {
	Root   string
	MaxAge time.Duration    // default DefaultRetention
	DryRun bool             // report without deleting
	Now    func() time.Time // default time.Now
}

// PurgeFailure records a directory that could not be inspected or removed.
type PurgeFailure struct {
	Path string
	Err  error
}

// PurgeResult lists what a purge removed (or would remove in a dry run).
type PurgeResult struct {
	Removed  []string
	Kept     int
	Failures []PurgeFailure
}

// Purger removes feed subtrees older than the retention age.
type Purger struct {
	opts   PurgeOptions
	logger *slog.Logger
}

func NewPurger(opts PurgeOptions, logger *slog.Logger) *Purger {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{opts: opts, logger: logger.With("component", "purge")}
}

// Purge removes every immediate subdirectory of the root whose modification
// time is strictly older than now-MaxAge. Failures on one directory do not
// stop the sweep.
func (p *Purger) Purge(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	entries, err := os.ReadDir(p.opts.Root)
	if err != nil {
		return res, fmt.Errorf("read feed root: %w", err)
	}

	now := p.opts.Now()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dir := filepath.Join(p.opts.Root, e.Name())
		info, err := e.Info()
		if err != nil {
			res.Failures = append(res.Failures, PurgeFailure{Path: dir, Err: err})
			continue
		}
		if now.Sub(info.ModTime()) <= p.opts.MaxAge {
			res.Kept++
			continue
		}
		if p.opts.DryRun {
			p.logger.Info("would remove", "dir", dir, "modified", info.ModTime())
			res.Removed = append(res.Removed, dir)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("remove failed", "dir", dir, "err", err)
			res.Failures = append(res.Failures, PurgeFailure{Path: dir, Err: err})
			continue
		}
		p.logger.Info("removed", "dir", dir)
		metrics.DirectoriesPurged.Inc()
		res.Removed = append(res.Removed, dir)
	}
	return res, nil
}
