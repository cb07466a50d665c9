package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for case documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, caseID, documentID string) (Document, error)
	ListByCase(ctx context.Context, caseID string) ([]Document, error)
	CountByCase(ctx context.Context, caseID string) (int, error)
	UpdateExtraction(ctx context.Context, caseID, documentID, extractedText string, extractedAt time.Time) error
	Delete(ctx context.Context, caseID, documentID string) error
}
