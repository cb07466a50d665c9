package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new case.
func (r *PGRepo) Create(ctx context.Context, c Case) error {
	const query = `
INSERT INTO cases (
	id, user_id, title, narrative, claim_amount, currency, kanton, parties,
	status, current_step, next_action_label, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	parties, err := json.Marshal(c.Parties)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		c.ID,
		c.UserID,
		c.Title,
		c.Narrative,
		c.ClaimAmount,
		c.Currency,
		c.Kanton,
		string(parties),
		string(c.Status),
		c.CurrentStep,
		c.NextActionLabel,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

// GetByID returns a case by ID.
func (r *PGRepo) GetByID(ctx context.Context, caseID string) (Case, error) {
	const query = `
SELECT id, user_id, title, narrative, claim_amount, currency, kanton, parties,
       status, current_step, next_action_label, created_at, updated_at
FROM cases
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, ErrNotFound
	}
	return c, err
}

// ListByUser returns cases for a user, newest first, with limit/offset.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Case, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, user_id, title, narrative, claim_amount, currency, kanton, parties,
       status, current_step, next_action_label, created_at, updated_at
FROM cases
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status and step labels for an existing case.
func (r *PGRepo) UpdateStatus(ctx context.Context, caseID string, status Status, currentStep, nextActionLabel string, updatedAt time.Time) error {
	const query = `
UPDATE cases
SET status = $2, current_step = $3, next_action_label = $4, updated_at = $5
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, caseID, string(status), currentStep, nextActionLabel, updatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// UpdateClaim sets the claim amount for an existing case.
func (r *PGRepo) UpdateClaim(ctx context.Context, caseID string, claimAmount float64, updatedAt time.Time) error {
	const query = `UPDATE cases SET claim_amount = $2, updated_at = $3 WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, caseID, claimAmount, updatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Touch refreshes updatedAt without changing anything else.
func (r *PGRepo) Touch(ctx context.Context, caseID string, updatedAt time.Time) error {
	const query = `UPDATE cases SET updated_at = $2 WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, caseID, updatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (Case, error) {
	var c Case
	var parties sql.NullString
	var kanton sql.NullString
	var status string
	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.Narrative,
		&c.ClaimAmount,
		&c.Currency,
		&kanton,
		&parties,
		&status,
		&c.CurrentStep,
		&c.NextActionLabel,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Case{}, err
	}
	c.Status = Status(status)
	c.Kanton = kanton.String
	if parties.Valid && parties.String != "" {
		if err := json.Unmarshal([]byte(parties.String), &c.Parties); err != nil {
			return Case{}, err
		}
	}
	return c, nil
}

func requireRowAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
