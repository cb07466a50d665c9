package mindstudio

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Thread states.
const (
	ThreadRunning = "running"
	ThreadDone    = "done"
	ThreadError   = "error"
)

// ErrThreadNotFound is returned when polling an unknown thread.
var ErrThreadNotFound = errors.New("thread not found")

// ThreadResult tracks one asynchronous worker job, keyed by its opaque
// thread id.
type ThreadResult struct {
	ThreadID  string          `json:"threadId"`
	Status    string          `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	Cost      json.RawMessage `json:"cost,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ThreadStore keeps job results for pollers. Implementations must accept
// completions for thread ids they never saw dispatched: after a process
// restart the callback may be the first mention of a job.
type ThreadStore interface {
	MarkRunning(ctx context.Context, threadID string) error
	Complete(ctx context.Context, threadID string, output, cost json.RawMessage) error
	Fail(ctx context.Context, threadID, message string) error
	Get(ctx context.Context, threadID string) (ThreadResult, error)
}

// MemoryThreadStore is a process-lifetime ThreadStore. Results are never
// evicted; a restart loses all in-flight bookkeeping.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[string]ThreadResult
	now     func() time.Time
}

// NewMemoryThreadStore constructs a MemoryThreadStore.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{
		threads: make(map[string]ThreadResult),
		now:     time.Now,
	}
}

// MarkRunning records a freshly dispatched job.
func (s *MemoryThreadStore) MarkRunning(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.threads[threadID]; ok && existing.Status != ThreadRunning {
		// The callback beat the dispatch bookkeeping; keep the result.
		return nil
	}
	s.threads[threadID] = ThreadResult{
		ThreadID:  threadID,
		Status:    ThreadRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Complete stores the job output, creating the entry if it was never
// dispatched by this process.
func (s *MemoryThreadStore) Complete(ctx context.Context, threadID string, output, cost json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.threads[threadID]
	if !ok {
		entry = ThreadResult{ThreadID: threadID, CreatedAt: now}
	}
	entry.Status = ThreadDone
	entry.Output = output
	entry.Cost = cost
	entry.Error = ""
	entry.UpdatedAt = now
	s.threads[threadID] = entry
	return nil
}

// Fail marks the job as errored.
func (s *MemoryThreadStore) Fail(ctx context.Context, threadID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.threads[threadID]
	if !ok {
		entry = ThreadResult{ThreadID: threadID, CreatedAt: now}
	}
	entry.Status = ThreadError
	entry.Error = message
	entry.UpdatedAt = now
	s.threads[threadID] = entry
	return nil
}

// Get returns the current state of a thread.
func (s *MemoryThreadStore) Get(ctx context.Context, threadID string) (ThreadResult, error) {
	if err := ctx.Err(); err != nil {
		return ThreadResult{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.threads[threadID]
	if !ok {
		return ThreadResult{}, ErrThreadNotFound
	}
	return entry, nil
}

var _ ThreadStore = (*MemoryThreadStore)(nil)
