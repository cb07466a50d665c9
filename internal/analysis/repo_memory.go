package analysis

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analyses and dispatch records in memory and is safe for
// concurrent use.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Analysis
	byCase   map[string][]string
	requests map[string]Request
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:     make(map[string]Analysis),
		byCase:   make(map[string][]string),
		requests: make(map[string]Request),
	}
}

// CreateAnalysis appends a new analysis record.
func (r *MemoryRepo) CreateAnalysis(ctx context.Context, a Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.ID] = a
	r.byCase[a.CaseID] = append(r.byCase[a.CaseID], a.ID)
	return nil
}

// GetAnalysis returns an analysis by ID.
func (r *MemoryRepo) GetAnalysis(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// ListByCase returns analyses for a case, newest first.
func (r *MemoryRepo) ListByCase(ctx context.Context, caseID string) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := r.byCase[caseID]
	out := make([]Analysis, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// LatestByCase returns the most recent analysis for a case.
func (r *MemoryRepo) LatestByCase(ctx context.Context, caseID string) (Analysis, error) {
	list, err := r.ListByCase(ctx, caseID)
	if err != nil {
		return Analysis{}, err
	}
	if len(list) == 0 {
		return Analysis{}, ErrNotFound
	}
	return list[0], nil
}

// CountByCase returns the number of analyses recorded for a case.
func (r *MemoryRepo) CountByCase(ctx context.Context, caseID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCase[caseID]), nil
}

// CreateRequest stores a new dispatch record.
func (r *MemoryRepo) CreateRequest(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	return nil
}

// GetRequest returns a dispatch record by ID.
func (r *MemoryRepo) GetRequest(ctx context.Context, requestID string) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

// UpdateRequest records the dispatch outcome. Empty threadID and errMessage
// leave the stored values untouched.
func (r *MemoryRepo) UpdateRequest(ctx context.Context, requestID, status, threadID, errMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	if threadID != "" {
		req.ThreadID = threadID
	}
	if errMessage != "" {
		req.Error = errMessage
	}
	req.UpdatedAt = time.Now().UTC()
	r.requests[requestID] = req
	return nil
}

// ClaimRequest completes a pending request, or reports false when another
// finalizer already resolved it.
func (r *MemoryRepo) ClaimRequest(ctx context.Context, requestID, threadID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok {
		return false, ErrNotFound
	}
	if req.Status != RequestPending {
		return false, nil
	}
	req.Status = RequestCompleted
	if threadID != "" {
		req.ThreadID = threadID
	}
	req.UpdatedAt = time.Now().UTC()
	r.requests[requestID] = req
	return true, nil
}

var _ Repo = (*MemoryRepo)(nil)
