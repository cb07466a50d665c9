package cases

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores cases in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Case
	byUser map[string][]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Case),
		byUser: make(map[string][]string),
	}
}

// Create stores the case.
func (r *MemoryRepo) Create(ctx context.Context, c Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	r.byUser[c.UserID] = append(r.byUser[c.UserID], c.ID)
	return nil
}

// GetByID returns a case by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, caseID string) (Case, error) {
	if err := ctx.Err(); err != nil {
		return Case{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[caseID]
	if !ok {
		return Case{}, ErrNotFound
	}
	return c, nil
}

// ListByUser returns cases for a user, newest first, with limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	ids := r.byUser[userID]
	out := make([]Case, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Case{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// UpdateStatus sets the status and step labels for an existing case.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, caseID string, status Status, currentStep, nextActionLabel string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[caseID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.CurrentStep = currentStep
	c.NextActionLabel = nextActionLabel
	c.UpdatedAt = updatedAt
	r.byID[caseID] = c
	return nil
}

// UpdateClaim sets the claim amount for an existing case.
func (r *MemoryRepo) UpdateClaim(ctx context.Context, caseID string, claimAmount float64, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[caseID]
	if !ok {
		return ErrNotFound
	}
	c.ClaimAmount = claimAmount
	c.UpdatedAt = updatedAt
	r.byID[caseID] = c
	return nil
}

// Touch refreshes the updatedAt timestamp without changing anything else.
func (r *MemoryRepo) Touch(ctx context.Context, caseID string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[caseID]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = updatedAt
	r.byID[caseID] = c
	return nil
}
