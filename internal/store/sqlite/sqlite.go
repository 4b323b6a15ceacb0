// Package sqlite implements the store.Store interface on an embedded SQLite
// file through gorm. It backs single-host deployments and tests that need a
// real database without a PostgreSQL server.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

// SQLiteStore implements store.Store on a gorm handle. Inside
// RunInTransaction the handle is the transaction itself.
type SQLiteStore struct {
	db   *gorm.DB
	inTx bool
}

// Compile-time check that SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)

// New opens (creating if needed) the SQLite database at dsn and migrates the
// schema.
func New(dsn string) (*SQLiteStore, error) {
	if err := ensureDirectory(dsn); err != nil {
		return nil, err
	}

	db, err := gorm.Open(gormsqlite.Open(withForeignKeys(dsn)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// between the reconciler's workers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(tables...); err != nil {
		sqlDB.Close()
		return nil, store.Fatal(fmt.Errorf("auto migrate: %w", err))
	}

	return &SQLiteStore{db: db}, nil
}

func ensureDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || candidate == ":memory:" {
		return nil
	}
	candidate = strings.TrimPrefix(candidate, "file:")
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}
	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory %q: %w", dir, err)
	}
	return nil
}

// withForeignKeys turns on foreign key enforcement for every connection
// opened from dsn. SQLite leaves it off by default.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// classify marks lock contention as transient on top of the common rules.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return store.Transient(err)
	}
	return store.ClassifyCommon(err)
}

func (s *SQLiteStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *SQLiteStore) insertIfAbsent(ctx context.Context, row any) (bool, error) {
	res := s.conn(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLiteStore) exists(ctx context.Context, row any, query string, args ...any) (bool, error) {
	var n int64
	if err := s.conn(ctx).Model(row).Where(query, args...).Count(&n).Error; err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, event *model.Event) (bool, error) {
	return s.insertIfAbsent(ctx, toEventRow(event))
}

func (s *SQLiteStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	var row eventRow
	if err := s.conn(ctx).Where("event_id = ?", eventID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	return s.exists(ctx, &eventRow{}, "event_id = ?", eventID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]*model.Event, error) {
	order := "`time` ASC, event_id ASC"
	if filter.Descending {
		order = "`time` DESC, event_id DESC"
	}
	q := s.conn(ctx).Order(order)
	if !filter.Since.IsZero() {
		q = q.Where("`time` >= ?", filter.Since.UTC())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []eventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", classify(err))
	}
	events := make([]*model.Event, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].toModel())
	}
	return events, nil
}

func (s *SQLiteStore) AddDetector(ctx context.Context, detector *model.Detector) (bool, error) {
	return s.insertIfAbsent(ctx, &detectorRow{
		Name: detector.Name,
		Lat:  detector.Latitude,
		Lon:  detector.Longitude,
	})
}

func (s *SQLiteStore) ListDetectors(ctx context.Context) ([]*model.Detector, error) {
	var rows []detectorRow
	if err := s.conn(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list detectors: %w", classify(err))
	}
	detectors := make([]*model.Detector, 0, len(rows))
	for i := range rows {
		detectors = append(detectors, rows[i].toModel())
	}
	return detectors, nil
}

func (s *SQLiteStore) HasPrediction(ctx context.Context, key model.PredictionKey) (bool, error) {
	return s.exists(ctx, &predictionRow{}, "event_id = ? AND detector = ?", key.EventID, key.Detector)
}

func (s *SQLiteStore) InsertPrediction(ctx context.Context, prediction *model.Prediction) (bool, error) {
	return s.insertIfAbsent(ctx, toPredictionRow(prediction))
}

func (s *SQLiteStore) GetPrediction(ctx context.Context, key model.PredictionKey) (*model.Prediction, error) {
	var row predictionRow
	err := s.conn(ctx).
		Where("event_id = ? AND detector = ?", key.EventID, key.Detector).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) PredictionsForEvent(ctx context.Context, eventID string) ([]*model.Prediction, error) {
	return s.listPredictions(ctx, s.conn(ctx).Where("event_id = ?", eventID).Order("detector ASC"))
}

func (s *SQLiteStore) ListPredictions(ctx context.Context) ([]*model.Prediction, error) {
	return s.listPredictions(ctx, s.conn(ctx).Order("event_id ASC, detector ASC"))
}

func (s *SQLiteStore) listPredictions(_ context.Context, q *gorm.DB) ([]*model.Prediction, error) {
	var rows []predictionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list predictions: %w", classify(err))
	}
	preds := make([]*model.Prediction, 0, len(rows))
	for i := range rows {
		preds = append(preds, rows[i].toModel())
	}
	return preds, nil
}

func (s *SQLiteStore) MissingPredictions(ctx context.Context) ([]model.PredictionKey, error) {
	var keys []model.PredictionKey
	err := s.conn(ctx).
		Table("events AS e").
		Select("e.event_id AS event_id, d.name AS detector").
		Joins("CROSS JOIN detectors AS d").
		Joins("LEFT JOIN predictions AS p ON p.event_id = e.event_id AND p.detector = d.name").
		Where("p.id IS NULL").
		Order("e.`time` ASC, e.event_id ASC, d.name ASC").
		Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("missing predictions: %w", classify(err))
	}
	return keys, nil
}

// Reset drops every table and recreates the schema.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if s.inTx {
		return errors.New("reset schema: not allowed inside a transaction")
	}
	m := s.conn(ctx).Migrator()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := m.DropTable(tables[i]); err != nil {
			return store.Fatal(fmt.Errorf("drop table: %w", err))
		}
	}
	if err := s.conn(ctx).AutoMigrate(tables...); err != nil {
		return store.Fatal(fmt.Errorf("auto migrate: %w", err))
	}
	return nil
}

// RunInTransaction runs fn inside a gorm transaction. Nested calls reuse the
// open transaction.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SQLiteStore{db: tx, inTx: true})
	})
}

// Close closes the underlying connection. It is a no-op inside a transaction.
func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
