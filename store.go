package taskx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Store abstracts persistence for work item lifecycle records.
// Implementations must be safe for concurrent use.
type Store interface {
	InsertCreated(ctx context.Context, rec TaskRecord) error
	MarkEnqueued(ctx context.Context, itemID string, queue string, enqueuedAt time.Time) error
	MarkStarted(ctx context.Context, itemID string, startedAt time.Time) error
	MarkCompleted(ctx context.Context, itemID string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, itemID string, errorMsg string, finishedAt time.Time) error
	GetByID(ctx context.Context, itemID string) (*TaskRecord, error)
}

// Schema creates the lifecycle table. It is valid for SQLite and Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS taskx_items (
    id           VARCHAR(64)  PRIMARY KEY,
    callable     VARCHAR(255) NOT NULL,
    queue        VARCHAR(64)  NOT NULL,
    args_json    TEXT         NOT NULL,
    status       VARCHAR(32)  NOT NULL,
    error_msg    TEXT         NULL,
    created_at   TIMESTAMP    NOT NULL,
    updated_at   TIMESTAMP    NULL,
    enqueued_at  TIMESTAMP    NULL,
    started_at   TIMESTAMP    NULL,
    finished_at  TIMESTAMP    NULL
);
`

// SQLStore is a Store backed by database/sql. It speaks both '?' (SQLite,
// MySQL) and '$n' (Postgres) placeholder styles: the first statement that
// fails with '?' switches the store to '$n' for good.
type SQLStore struct {
	db       *sql.DB
	dollarPH atomic.Bool
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate applies Schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return errors.New("nil db")
	}
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// exec runs q, or qpg when the driver wants dollar placeholders.
func (s *SQLStore) exec(ctx context.Context, q, qpg string, args ...any) error {
	if s.db == nil {
		return errors.New("nil db")
	}
	if !s.dollarPH.Load() {
		if _, err := s.db.ExecContext(ctx, q, args...); err == nil {
			return nil
		}
	}
	if _, err := s.db.ExecContext(ctx, qpg, args...); err != nil {
		return err
	}
	s.dollarPH.Store(true)
	return nil
}

func (s *SQLStore) InsertCreated(ctx context.Context, rec TaskRecord) error {
	q := `INSERT INTO taskx_items (id, callable, queue, args_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	qpg := `INSERT INTO taskx_items (id, callable, queue, args_json, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return s.exec(ctx, q, qpg, rec.ID, rec.Callable, rec.Queue, rec.ArgsJSON, string(StatusCreated), created.UTC())
}

func (s *SQLStore) MarkEnqueued(ctx context.Context, itemID string, queue string, enqueuedAt time.Time) error {
	q := `UPDATE taskx_items SET status = ?, queue = ?, enqueued_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	qpg := `UPDATE taskx_items SET status = $1, queue = $2, enqueued_at = $3, updated_at = NOW() WHERE id = $4`
	return s.exec(ctx, q, qpg, string(StatusPending), queue, enqueuedAt.UTC(), itemID)
}

func (s *SQLStore) MarkStarted(ctx context.Context, itemID string, startedAt time.Time) error {
	q := `UPDATE taskx_items SET status = ?, started_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	qpg := `UPDATE taskx_items SET status = $1, started_at = $2, updated_at = NOW() WHERE id = $3`
	return s.exec(ctx, q, qpg, string(StatusDequeued), startedAt.UTC(), itemID)
}

func (s *SQLStore) MarkCompleted(ctx context.Context, itemID string, finishedAt time.Time) error {
	q := `UPDATE taskx_items SET status = ?, error_msg = NULL, finished_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	qpg := `UPDATE taskx_items SET status = $1, error_msg = NULL, finished_at = $2, updated_at = NOW() WHERE id = $3`
	return s.exec(ctx, q, qpg, string(StatusCompleted), finishedAt.UTC(), itemID)
}

func (s *SQLStore) MarkFailed(ctx context.Context, itemID string, errorMsg string, finishedAt time.Time) error {
	q := `UPDATE taskx_items SET status = ?, error_msg = ?, finished_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	qpg := `UPDATE taskx_items SET status = $1, error_msg = $2, finished_at = $3, updated_at = NOW() WHERE id = $4`
	return s.exec(ctx, q, qpg, string(StatusFailed), errorMsg, finishedAt.UTC(), itemID)
}

// GetByID returns the record of itemID; the error wraps ErrNotFound when
// there is none.
func (s *SQLStore) GetByID(ctx context.Context, itemID string) (*TaskRecord, error) {
	if s.db == nil {
		return nil, errors.New("nil db")
	}
	q := `SELECT id, callable, queue, args_json, status, error_msg, created_at, enqueued_at, started_at, finished_at FROM taskx_items WHERE id = ?`
	qpg := `SELECT id, callable, queue, args_json, status, error_msg, created_at, enqueued_at, started_at, finished_at FROM taskx_items WHERE id = $1`

	dollar := s.dollarPH.Load()
	rec, err := s.scanOne(s.db.QueryRowContext(ctx, pick(dollar, q, qpg), itemID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) && !dollar {
		// retry with postgres placeholders
		rec, err = s.scanOne(s.db.QueryRowContext(ctx, qpg, itemID))
		if err == nil {
			s.dollarPH.Store(true)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("work item %q %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLStore) scanOne(row *sql.Row) (*TaskRecord, error) {
	rec := TaskRecord{}
	var status string
	var enqueuedAt, startedAt, finishedAt sql.NullTime
	var errorMsg sql.NullString
	if err := row.Scan(&rec.ID, &rec.Callable, &rec.Queue, &rec.ArgsJSON, &status, &errorMsg, &rec.CreatedAt, &enqueuedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if errorMsg.Valid {
		v := errorMsg.String
		rec.ErrorMsg = &v
	}
	rec.EnqueuedAt = nullTime(enqueuedAt)
	rec.StartedAt = nullTime(startedAt)
	rec.FinishedAt = nullTime(finishedAt)
	return &rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func pick(dollar bool, q, qpg string) string {
	if dollar {
		return qpg
	}
	return q
}
