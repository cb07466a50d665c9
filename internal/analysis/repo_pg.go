package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// CreateAnalysis inserts a new analysis record. Analyses are append-only, so
// there is no corresponding update.
func (r *PGRepo) CreateAnalysis(ctx context.Context, a Analysis) error {
	const query = `
INSERT INTO analyses (
	id, case_id, user_id, phase, version, raw, result, confidence, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	result, err := json.Marshal(a.Result)
	if err != nil {
		return err
	}
	var raw any
	if len(a.Raw) > 0 {
		raw = string(a.Raw)
	}
	_, err = r.DB.ExecContext(ctx, query,
		a.ID,
		a.CaseID,
		a.UserID,
		string(a.Phase),
		a.Version,
		raw,
		string(result),
		a.Confidence,
		a.CreatedAt,
	)
	return err
}

// GetAnalysis returns one analysis by ID.
func (r *PGRepo) GetAnalysis(ctx context.Context, analysisID string) (Analysis, error) {
	const query = `
SELECT id, case_id, user_id, phase, version, raw, result, confidence, created_at
FROM analyses
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, analysisID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// ListByCase returns all analyses for a case, newest first.
func (r *PGRepo) ListByCase(ctx context.Context, caseID string) ([]Analysis, error) {
	const query = `
SELECT id, case_id, user_id, phase, version, raw, result, confidence, created_at
FROM analyses
WHERE case_id = $1
ORDER BY created_at DESC, version DESC`
	rows, err := r.DB.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestByCase returns the most recent analysis for a case.
func (r *PGRepo) LatestByCase(ctx context.Context, caseID string) (Analysis, error) {
	const query = `
SELECT id, case_id, user_id, phase, version, raw, result, confidence, created_at
FROM analyses
WHERE case_id = $1
ORDER BY created_at DESC, version DESC
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, caseID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// CountByCase returns the number of analyses stored for a case.
func (r *PGRepo) CountByCase(ctx context.Context, caseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM analyses WHERE case_id = $1`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, caseID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateRequest inserts a pending dispatch record.
func (r *PGRepo) CreateRequest(ctx context.Context, req Request) error {
	const query = `
INSERT INTO analysis_requests (
	id, case_id, user_id, phase, status, thread_id, input, error, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	var input any
	if req.Input != nil {
		b, err := json.Marshal(req.Input)
		if err != nil {
			return err
		}
		input = string(b)
	}
	_, err := r.DB.ExecContext(ctx, query,
		req.ID,
		req.CaseID,
		req.UserID,
		string(req.Phase),
		req.Status,
		req.ThreadID,
		input,
		req.Error,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return err
}

// GetRequest returns a dispatch record by ID.
func (r *PGRepo) GetRequest(ctx context.Context, requestID string) (Request, error) {
	const query = `
SELECT id, case_id, user_id, phase, status, thread_id, input, error, created_at, updated_at
FROM analysis_requests
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, requestID)
	var req Request
	var phase string
	var threadID, errMessage, input sql.NullString
	err := row.Scan(
		&req.ID,
		&req.CaseID,
		&req.UserID,
		&phase,
		&req.Status,
		&threadID,
		&input,
		&errMessage,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	req.Phase = Phase(phase)
	req.ThreadID = threadID.String
	req.Error = errMessage.String
	if input.Valid && input.String != "" {
		if err := json.Unmarshal([]byte(input.String), &req.Input); err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

// UpdateRequest moves a dispatch record out of the pending state. Empty
// threadID and errMessage leave the stored values untouched.
func (r *PGRepo) UpdateRequest(ctx context.Context, requestID, status, threadID, errMessage string) error {
	const query = `
UPDATE analysis_requests
SET status = $2,
    thread_id = COALESCE(NULLIF($3, ''), thread_id),
    error = COALESCE(NULLIF($4, ''), error),
    updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, requestID, status, threadID, errMessage)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimRequest completes a pending request, or reports false when another
// finalizer already resolved it.
func (r *PGRepo) ClaimRequest(ctx context.Context, requestID, threadID string) (bool, error) {
	const query = `
UPDATE analysis_requests
SET status = $2,
    thread_id = COALESCE(NULLIF($3, ''), thread_id),
    updated_at = NOW()
WHERE id = $1 AND status = $4`
	res, err := r.DB.ExecContext(ctx, query, requestID, RequestCompleted, threadID, RequestPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var phase, result string
	var raw sql.NullString
	if err := row.Scan(
		&a.ID,
		&a.CaseID,
		&a.UserID,
		&phase,
		&a.Version,
		&raw,
		&result,
		&a.Confidence,
		&a.CreatedAt,
	); err != nil {
		return Analysis{}, err
	}
	a.Phase = Phase(phase)
	if raw.Valid && raw.String != "" {
		a.Raw = json.RawMessage(raw.String)
	}
	if result != "" {
		if err := json.Unmarshal([]byte(result), &a.Result); err != nil {
			return Analysis{}, err
		}
	}
	return a, nil
}
