package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore persists attempt windows in Postgres so quota survives restarts.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a PGStore.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Consume(ctx context.Context, userID, operation string, limit int, window time.Duration, now time.Time) (Window, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Window{}, err
	}
	defer tx.Rollback()

	w, err := ensureTx(ctx, tx, userID, operation, limit, window, now)
	if err != nil {
		return Window{}, err
	}
	if w.Used >= w.Limit {
		if err := tx.Commit(); err != nil {
			return Window{}, err
		}
		return w, ErrLimitReached
	}

	w.Used++
	const update = `
UPDATE extraction_quota SET used = $3, window_start = $4, resets_at = $5
WHERE user_id = $1 AND operation = $2`
	if _, err := tx.ExecContext(ctx, update, userID, operation, w.Used, w.WindowStart, w.ResetsAt); err != nil {
		return Window{}, err
	}
	if err := tx.Commit(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (s *PGStore) Get(ctx context.Context, userID, operation string, limit int, window time.Duration, now time.Time) (Window, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Window{}, err
	}
	defer tx.Rollback()
	w, err := ensureTx(ctx, tx, userID, operation, limit, window, now)
	if err != nil {
		return Window{}, err
	}
	if err := tx.Commit(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (s *PGStore) Reset(ctx context.Context, userID, operation string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM extraction_quota WHERE user_id = $1 AND operation = $2`, userID, operation)
	return err
}

func ensureTx(ctx context.Context, tx *sql.Tx, userID, operation string, limit int, window time.Duration, now time.Time) (Window, error) {
	const query = `
SELECT used, window_start, resets_at FROM extraction_quota
WHERE user_id = $1 AND operation = $2
FOR UPDATE`
	w := Window{UserID: userID, Operation: operation, Limit: limit}
	err := tx.QueryRowContext(ctx, query, userID, operation).Scan(&w.Used, &w.WindowStart, &w.ResetsAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		w.Used = 0
		w.WindowStart = now
		w.ResetsAt = now.Add(window)
		const insert = `
INSERT INTO extraction_quota (user_id, operation, used, window_start, resets_at)
VALUES ($1, $2, 0, $3, $4)`
		if _, err := tx.ExecContext(ctx, insert, userID, operation, w.WindowStart, w.ResetsAt); err != nil {
			return Window{}, err
		}
		return w, nil
	case err != nil:
		return Window{}, err
	}
	if !now.Before(w.ResetsAt) {
		w.Used = 0
		w.WindowStart = now
		w.ResetsAt = now.Add(window)
		const reset = `
UPDATE extraction_quota SET used = 0, window_start = $3, resets_at = $4
WHERE user_id = $1 AND operation = $2`
		if _, err := tx.ExecContext(ctx, reset, userID, operation, w.WindowStart, w.ResetsAt); err != nil {
			return Window{}, err
		}
	}
	return w, nil
}
