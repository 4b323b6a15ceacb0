// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sqlx.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db.DB, false); err != nil {
		db.Close()
		return nil, store.Fatal(fmt.Errorf("run migrations: %w", err))
	}

	return &PostgresStore{db: db}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// runMigrations applies pending migrations. With reset set it first runs
// every down migration, which drops all tables.
func runMigrations(db *sql.DB, reset bool) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if reset {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("revert migrations: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Reset drops and recreates every table through the migrator.
func (s *PostgresStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := runMigrations(s.db.DB, true); err != nil {
		return store.Fatal(fmt.Errorf("reset schema: %w", err))
	}
	return nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, event *model.Event) (bool, error) {
	return queryCreateEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	return queryGetEvent(ctx, s.db, eventID)
}

func (s *PostgresStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	return queryEventExists(ctx, s.db, eventID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, filter)
}

func (s *PostgresStore) AddDetector(ctx context.Context, detector *model.Detector) (bool, error) {
	return queryAddDetector(ctx, s.db, detector)
}

func (s *PostgresStore) ListDetectors(ctx context.Context) ([]*model.Detector, error) {
	return queryListDetectors(ctx, s.db)
}

func (s *PostgresStore) HasPrediction(ctx context.Context, key model.PredictionKey) (bool, error) {
	return queryHasPrediction(ctx, s.db, key)
}

func (s *PostgresStore) InsertPrediction(ctx context.Context, prediction *model.Prediction) (bool, error) {
	return queryInsertPrediction(ctx, s.db, prediction)
}

func (s *PostgresStore) GetPrediction(ctx context.Context, key model.PredictionKey) (*model.Prediction, error) {
	return queryGetPrediction(ctx, s.db, key)
}

func (s *PostgresStore) PredictionsForEvent(ctx context.Context, eventID string) ([]*model.Prediction, error) {
	return queryPredictionsForEvent(ctx, s.db, eventID)
}

func (s *PostgresStore) ListPredictions(ctx context.Context) ([]*model.Prediction, error) {
	return queryListPredictions(ctx, s.db)
}

func (s *PostgresStore) MissingPredictions(ctx context.Context) ([]model.PredictionKey, error) {
	return queryMissingPredictions(ctx, s.db)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// txStore implements store.Store using a *sqlx.Tx.
type txStore struct {
	tx *sqlx.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateEvent(ctx context.Context, event *model.Event) (bool, error) {
	return queryCreateEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	return queryGetEvent(ctx, s.tx, eventID)
}

func (s *txStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	return queryEventExists(ctx, s.tx, eventID)
}

func (s *txStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]*model.Event, error) {
	return queryListEvents(ctx, s.tx, filter)
}

func (s *txStore) AddDetector(ctx context.Context, detector *model.Detector) (bool, error) {
	return queryAddDetector(ctx, s.tx, detector)
}

func (s *txStore) ListDetectors(ctx context.Context) ([]*model.Detector, error) {
	return queryListDetectors(ctx, s.tx)
}

func (s *txStore) HasPrediction(ctx context.Context, key model.PredictionKey) (bool, error) {
	return queryHasPrediction(ctx, s.tx, key)
}

func (s *txStore) InsertPrediction(ctx context.Context, prediction *model.Prediction) (bool, error) {
	return queryInsertPrediction(ctx, s.tx, prediction)
}

func (s *txStore) GetPrediction(ctx context.Context, key model.PredictionKey) (*model.Prediction, error) {
	return queryGetPrediction(ctx, s.tx, key)
}

func (s *txStore) PredictionsForEvent(ctx context.Context, eventID string) ([]*model.Prediction, error) {
	return queryPredictionsForEvent(ctx, s.tx, eventID)
}

func (s *txStore) ListPredictions(ctx context.Context) ([]*model.Prediction, error) {
	return queryListPredictions(ctx, s.tx)
}

func (s *txStore) MissingPredictions(ctx context.Context) ([]model.PredictionKey, error) {
	return queryMissingPredictions(ctx, s.tx)
}

// Reset is refused inside a transaction; the migrator needs its own connection.
func (s *txStore) Reset(ctx context.Context) error {
	return errors.New("reset schema: not allowed inside a transaction")
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
