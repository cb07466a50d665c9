package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores documents in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Document
	byCase map[string][]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Document),
		byCase: make(map[string][]string),
	}
}

// Create stores the document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[doc.ID] = doc
	r.byCase[doc.CaseID] = append(r.byCase[doc.CaseID], doc.ID)
	return nil
}

// GetByID returns a document scoped to its case.
func (r *MemoryRepo) GetByID(ctx context.Context, caseID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byID[documentID]
	if !ok || doc.CaseID != caseID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// ListByCase returns documents for a case, oldest first.
func (r *MemoryRepo) ListByCase(ctx context.Context, caseID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := r.byCase[caseID]
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := r.byID[id]; ok {
			out = append(out, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CountByCase returns the number of documents attached to a case.
func (r *MemoryRepo) CountByCase(ctx context.Context, caseID string) (int, error) {
	docs, err := r.ListByCase(ctx, caseID)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// UpdateExtraction records the extracted text for a document.
func (r *MemoryRepo) UpdateExtraction(ctx context.Context, caseID, documentID, extractedText string, extractedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[documentID]
	if !ok || doc.CaseID != caseID {
		return ErrNotFound
	}
	doc.ExtractedText = extractedText
	doc.ExtractedAt = &extractedAt
	r.byID[documentID] = doc
	return nil
}

// Delete removes a document record.
func (r *MemoryRepo) Delete(ctx context.Context, caseID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[documentID]
	if !ok || doc.CaseID != caseID {
		return ErrNotFound
	}
	delete(r.byID, documentID)
	ids := r.byCase[caseID]
	for i, id := range ids {
		if id == documentID {
			r.byCase[caseID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
