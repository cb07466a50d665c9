package documents

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
	id, case_id, user_id, file_name, mime_type, size_bytes,
	storage_provider, storage_key, extracted_text, extracted_at, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.CaseID,
		doc.UserID,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.StorageProvider,
		doc.StorageKey,
		nullableString(doc.ExtractedText),
		doc.ExtractedAt,
		doc.CreatedAt,
	)
	return err
}

// GetByID returns a document scoped to its case.
func (r *PGRepo) GetByID(ctx context.Context, caseID, documentID string) (Document, error) {
	const query = `
SELECT id, case_id, user_id, file_name, mime_type, size_bytes,
       storage_provider, storage_key, extracted_text, extracted_at, created_at
FROM documents
WHERE id = $1 AND case_id = $2
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// ListByCase returns documents for a case, oldest first.
func (r *PGRepo) ListByCase(ctx context.Context, caseID string) ([]Document, error) {
	const query = `
SELECT id, case_id, user_id, file_name, mime_type, size_bytes,
       storage_provider, storage_key, extracted_text, extracted_at, created_at
FROM documents
WHERE case_id = $1
ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CountByCase returns the number of documents attached to a case.
func (r *PGRepo) CountByCase(ctx context.Context, caseID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE case_id = $1`, caseID).Scan(&count)
	return count, err
}

// UpdateExtraction records the extracted text for a document.
func (r *PGRepo) UpdateExtraction(ctx context.Context, caseID, documentID, extractedText string, extractedAt time.Time) error {
	const query = `
UPDATE documents
SET extracted_text = $3, extracted_at = $4
WHERE id = $1 AND case_id = $2`
	res, err := r.DB.ExecContext(ctx, query, documentID, caseID, extractedText, extractedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Delete removes a document record.
func (r *PGRepo) Delete(ctx context.Context, caseID, documentID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND case_id = $2`, documentID, caseID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var extractedText sql.NullString
	var extractedAt sql.NullTime
	if err := row.Scan(
		&doc.ID,
		&doc.CaseID,
		&doc.UserID,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageProvider,
		&doc.StorageKey,
		&extractedText,
		&extractedAt,
		&doc.CreatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.ExtractedText = extractedText.String
	if extractedAt.Valid {
		t := extractedAt.Time
		doc.ExtractedAt = &t
	}
	return doc, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
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
