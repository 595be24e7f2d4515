package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Моменты времени хранятся как BIGINT микросекунд Unix,
// чтобы схема одинаково работала в postgres и sqlite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		subject_id  TEXT NOT NULL,
		kind        TEXT NOT NULL,
		occurred_at BIGINT NOT NULL,
		amount      DOUBLE PRECISION NOT NULL,
		group_key   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_kind_occurred ON events (kind, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS assignment_intervals (
		subject_id  TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		assigned_at BIGINT NOT NULL,
		removed_at  BIGINT,
		PRIMARY KEY (subject_id, assigned_at)
	)`,
	`CREATE TABLE IF NOT EXISTS menu_items (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		price     DOUBLE PRECISION NOT NULL,
		available BOOLEAN NOT NULL
	)`,
}

// сколько subject_id передаётся в один IN (...)
const intervalBatch = 500

type eventRow struct {
	ID         string  `db:"id"`
	SubjectID  string  `db:"subject_id"`
	Kind       string  `db:"kind"`
	OccurredAt int64   `db:"occurred_at"`
	Amount     float64 `db:"amount"`
	GroupKey   string  `db:"group_key"`
}

func (r eventRow) event() models.Event {
	return models.Event{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		Kind:      models.EventKind(r.Kind),
		Timestamp: time.UnixMicro(r.OccurredAt).UTC(),
		Amount:    r.Amount,
		GroupKey:  r.GroupKey,
	}
}

type intervalRow struct {
	SubjectID  string        `db:"subject_id"`
	EntityID   string        `db:"entity_id"`
	AssignedAt int64         `db:"assigned_at"`
	RemovedAt  sql.NullInt64 `db:"removed_at"`
}

func (r intervalRow) interval() models.AssignmentInterval {
	iv := models.AssignmentInterval{
		SubjectID:  r.SubjectID,
		EntityID:   r.EntityID,
		AssignedAt: time.UnixMicro(r.AssignedAt).UTC(),
	}
	if r.RemovedAt.Valid {
		t := time.UnixMicro(r.RemovedAt.Int64).UTC()
		iv.RemovedAt = &t
	}
	return iv
}

// SQLStorage хранилище поверх postgres (lib/pq) или sqlite (modernc)
type SQLStorage struct {
	db     *sqlx.DB
	driver string
}

func NewSQLStorage(driver, dsn string) (*SQLStorage, error) {
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// in-memory база существует в рамках одного соединения
		db.SetMaxOpenConns(1)
	}
	return &SQLStorage{db: db, driver: driver}, nil
}

// Migrate создаёт таблицы, если их нет
func (s *SQLStorage) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStorage) AddEvent(ctx context.Context, event models.Event) (models.Event, error) {
	event, err := prepareEvent(event)
	if err != nil {
		return event, err
	}
	query := s.db.Rebind(`
		INSERT INTO events (id, subject_id, kind, occurred_at, amount, group_key)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.SubjectID,
		string(event.Kind),
		event.Timestamp.UnixMicro(),
		event.Amount,
		event.GroupKey,
	)
	if err != nil {
		return event, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *SQLStorage) FetchEvents(ctx context.Context, kind models.EventKind, start, end time.Time) ([]models.Event, error) {
	var rows []eventRow
	query := s.db.Rebind(`
		SELECT id, subject_id, kind, occurred_at, amount, group_key
		FROM events
		WHERE kind = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at, id
	`)
	if err := s.db.SelectContext(ctx, &rows, query, string(kind), start.UnixMicro(), end.UnixMicro()); err != nil {
		return nil, err
	}
	events := make([]models.Event, len(rows))
	for i, r := range rows {
		events[i] = r.event()
	}
	return events, nil
}

func (s *SQLStorage) FetchIntervals(ctx context.Context, subjectIDs []string) ([]models.AssignmentInterval, error) {
	var out []models.AssignmentInterval
	for start := 0; start < len(subjectIDs); start += intervalBatch {
		end := min(start+intervalBatch, len(subjectIDs))
		query, args, err := sqlx.In(`
			SELECT subject_id, entity_id, assigned_at, removed_at
			FROM assignment_intervals
			WHERE subject_id IN (?)
			ORDER BY subject_id, assigned_at
		`, subjectIDs[start:end])
		if err != nil {
			return nil, err
		}
		var rows []intervalRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r.interval())
		}
	}
	return out, nil
}

func (s *SQLStorage) history(ctx context.Context, tx *sqlx.Tx, subjectID string) ([]models.AssignmentInterval, error) {
	var rows []intervalRow
	query := tx.Rebind(`
		SELECT subject_id, entity_id, assigned_at, removed_at
		FROM assignment_intervals
		WHERE subject_id = ?
		ORDER BY assigned_at
	`)
	if err := tx.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, err
	}
	history := make([]models.AssignmentInterval, len(rows))
	for i, r := range rows {
		history[i] = r.interval()
	}
	return history, nil
}

func (s *SQLStorage) Assign(ctx context.Context, subjectID, entityID string, at time.Time) error {
	if subjectID == "" || entityID == "" {
		return fmt.Errorf("%w: subject_id and entity_id are required", ErrIntervalConflict)
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		before, err := s.history(ctx, tx, subjectID)
		if err != nil {
			return err
		}
		after, err := appendAssignment(before, subjectID, entityID, at.UTC())
		if err != nil {
			return err
		}
		return s.persistTail(ctx, tx, before, after)
	})
}

func (s *SQLStorage) Release(ctx context.Context, subjectID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		before, err := s.history(ctx, tx, subjectID)
		if err != nil {
			return err
		}
		after, err := closeOpen(before, at.UTC())
		if err != nil {
			return err
		}
		return s.persistTail(ctx, tx, before, after)
	})
}

// persistTail записывает изменения истории: закрытие последнего интервала
// и новые интервалы в конце
func (s *SQLStorage) persistTail(ctx context.Context, tx *sqlx.Tx, before, after []models.AssignmentInterval) error {
	if n := len(before); n > 0 && before[n-1].Open() && !after[n-1].Open() {
		query := tx.Rebind(`UPDATE assignment_intervals SET removed_at = ? WHERE subject_id = ? AND assigned_at = ?`)
		last := after[n-1]
		if _, err := tx.ExecContext(ctx, query, last.RemovedAt.UnixMicro(), last.SubjectID, last.AssignedAt.UnixMicro()); err != nil {
			return fmt.Errorf("close interval: %w", err)
		}
	}
	insert := tx.Rebind(`INSERT INTO assignment_intervals (subject_id, entity_id, assigned_at, removed_at) VALUES (?, ?, ?, NULL)`)
	for _, iv := range after[len(before):] {
		if _, err := tx.ExecContext(ctx, insert, iv.SubjectID, iv.EntityID, iv.AssignedAt.UnixMicro()); err != nil {
			return fmt.Errorf("insert interval: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLStorage) UpsertMenuItem(ctx context.Context, item models.MenuItem) error {
	if item.ID == "" {
		return errors.New("menu item id is required")
	}
	query := s.db.Rebind(`
		INSERT INTO menu_items (id, name, price, available)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, price = excluded.price, available = excluded.available
	`)
	_, err := s.db.ExecContext(ctx, query, item.ID, item.Name, item.Price, item.Available)
	return err
}

func (s *SQLStorage) FetchMenuItems(ctx context.Context) ([]models.MenuItem, error) {
	items := []models.MenuItem{}
	query := `SELECT id, name, price, available FROM menu_items ORDER BY id`
	if err := s.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}
