package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ligovirgo/seismon/internal/model"
	"github.com/ligovirgo/seismon/internal/store"
)

// psql builds statements with PostgreSQL $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	eventColumns      = []string{"event_id", "lat", "lon", "depth", "magnitude", "time", "sent", "created_at"}
	detectorColumns   = []string{"name", "lat", "lon", "created_at"}
	predictionColumns = []string{
		"event_id", "detector", "distance", "p", "s", "r2p0", "r3p5", "r5p0",
		"amplitude", "lockloss", "created_at",
	}
)

// executor is the interface satisfied by both *sqlx.DB and *sqlx.Tx.
type executor interface {
	sqlx.ExtContext
}

// classify marks connection-class, resource and serialization failures as
// transient so the retry layer can replay them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"40", // transaction rollback (serialization, deadlock)
			"53", // insufficient resources
			"57": // operator intervention (admin shutdown, cancel)
			return store.Transient(err)
		}
		return err
	}
	return store.ClassifyCommon(err)
}

// insertIfAbsent runs an INSERT ... ON CONFLICT DO NOTHING and reports whether
// a row was written.
func insertIfAbsent(ctx context.Context, db executor, b sq.InsertBuilder) (bool, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func exists(ctx context.Context, db executor, b sq.SelectBuilder) (bool, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}
	var one int
	if err := sqlx.GetContext(ctx, db, &one, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classify(err)
	}
	return true, nil
}

func selectAll[T any](ctx context.Context, db executor, b sq.SelectBuilder) ([]*T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var rows []*T
	if err := sqlx.SelectContext(ctx, db, &rows, query, args...); err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func selectOne[T any](ctx context.Context, db executor, b sq.SelectBuilder) (*T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var row T
	if err := sqlx.GetContext(ctx, db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return &row, nil
}

func queryCreateEvent(ctx context.Context, db executor, e *model.Event) (bool, error) {
	return insertIfAbsent(ctx, db, psql.Insert("events").
		Columns("event_id", "lat", "lon", "depth", "magnitude", "time", "sent").
		Values(e.EventID, e.Latitude, e.Longitude, e.Depth, e.Magnitude, e.Time.UTC(), e.Sent.UTC()).
		Suffix("ON CONFLICT (event_id) DO NOTHING"))
}

func queryGetEvent(ctx context.Context, db executor, eventID string) (*model.Event, error) {
	e, err := selectOne[model.Event](ctx, db, psql.Select(eventColumns...).
		From("events").
		Where(sq.Eq{"event_id": eventID}))
	if err != nil {
		return nil, err
	}
	normalizeEvent(e)
	return e, nil
}

func queryEventExists(ctx context.Context, db executor, eventID string) (bool, error) {
	return exists(ctx, db, psql.Select("1").
		From("events").
		Where(sq.Eq{"event_id": eventID}).
		Limit(1))
}

func queryListEvents(ctx context.Context, db executor, filter store.EventFilter) ([]*model.Event, error) {
	order := "ASC"
	if filter.Descending {
		order = "DESC"
	}
	b := psql.Select(eventColumns...).
		From("events").
		OrderBy("time "+order, "event_id "+order)
	if !filter.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"time": filter.Since.UTC()})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}
	events, err := selectAll[model.Event](ctx, db, b)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for _, e := range events {
		normalizeEvent(e)
	}
	return events, nil
}

func queryAddDetector(ctx context.Context, db executor, d *model.Detector) (bool, error) {
	return insertIfAbsent(ctx, db, psql.Insert("detectors").
		Columns("name", "lat", "lon").
		Values(d.Name, d.Latitude, d.Longitude).
		Suffix("ON CONFLICT (name) DO NOTHING"))
}

func queryListDetectors(ctx context.Context, db executor) ([]*model.Detector, error) {
	detectors, err := selectAll[model.Detector](ctx, db, psql.Select(detectorColumns...).
		From("detectors").
		OrderBy("name ASC"))
	if err != nil {
		return nil, fmt.Errorf("list detectors: %w", err)
	}
	for _, d := range detectors {
		d.CreatedAt = d.CreatedAt.UTC()
	}
	return detectors, nil
}

func pairCondition(key model.PredictionKey) sq.And {
	return sq.And{sq.Eq{"event_id": key.EventID}, sq.Eq{"detector": key.Detector}}
}

func queryHasPrediction(ctx context.Context, db executor, key model.PredictionKey) (bool, error) {
	return exists(ctx, db, psql.Select("1").
		From("predictions").
		Where(pairCondition(key)).
		Limit(1))
}

func queryInsertPrediction(ctx context.Context, db executor, p *model.Prediction) (bool, error) {
	return insertIfAbsent(ctx, db, psql.Insert("predictions").
		Columns("event_id", "detector", "distance", "p", "s", "r2p0", "r3p5", "r5p0", "amplitude", "lockloss").
		Values(p.EventID, p.Detector, p.Distance,
			p.P.UTC(), p.S.UTC(), p.R2p0.UTC(), p.R3p5.UTC(), p.R5p0.UTC(),
			p.Amplitude, p.Lockloss).
		Suffix("ON CONFLICT (event_id, detector) DO NOTHING"))
}

func queryGetPrediction(ctx context.Context, db executor, key model.PredictionKey) (*model.Prediction, error) {
	p, err := selectOne[model.Prediction](ctx, db, psql.Select(predictionColumns...).
		From("predictions").
		Where(pairCondition(key)))
	if err != nil {
		return nil, err
	}
	normalizePrediction(p)
	return p, nil
}

func queryPredictionsForEvent(ctx context.Context, db executor, eventID string) ([]*model.Prediction, error) {
	preds, err := selectAll[model.Prediction](ctx, db, psql.Select(predictionColumns...).
		From("predictions").
		Where(sq.Eq{"event_id": eventID}).
		OrderBy("detector ASC"))
	if err != nil {
		return nil, fmt.Errorf("predictions for %s: %w", eventID, err)
	}
	for _, p := range preds {
		normalizePrediction(p)
	}
	return preds, nil
}

func queryListPredictions(ctx context.Context, db executor) ([]*model.Prediction, error) {
	preds, err := selectAll[model.Prediction](ctx, db, psql.Select(predictionColumns...).
		From("predictions").
		OrderBy("event_id ASC", "detector ASC"))
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	for _, p := range preds {
		normalizePrediction(p)
	}
	return preds, nil
}

// queryMissingPredictions returns the (event, detector) pairs that have no
// prediction row, using the unique pair index instead of a per-pair lookup.
func queryMissingPredictions(ctx context.Context, db executor) ([]model.PredictionKey, error) {
	query, args, err := psql.Select("e.event_id", "d.name AS detector").
		From("events e").
		JoinClause("CROSS JOIN detectors d").
		LeftJoin("predictions p ON p.event_id = e.event_id AND p.detector = d.name").
		Where("p.id IS NULL").
		OrderBy("e.time ASC", "e.event_id ASC", "d.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var keys []model.PredictionKey
	if err := sqlx.SelectContext(ctx, db, &keys, query, args...); err != nil {
		return nil, fmt.Errorf("missing predictions: %w", classify(err))
	}
	return keys, nil
}

func normalizeEvent(e *model.Event) {
	e.Time = e.Time.UTC()
	e.Sent = e.Sent.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
}

func normalizePrediction(p *model.Prediction) {
	p.P = p.P.UTC()
	p.S = p.S.UTC()
	p.R2p0 = p.R2p0.UTC()
	p.R3p5 = p.R3p5.UTC()
	p.R5p0 = p.R5p0.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
}
