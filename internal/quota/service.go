package quota

import (
	"context"
	"time"
)

type store interface {
	Consume(ctx context.Context, userID, operation string, limit int, window time.Duration, now time.Time) (Window, error)
	Get(ctx context.Context, userID, operation string, limit int, window time.Duration, now time.Time) (Window, error)
	Reset(ctx context.Context, userID, operation string) error
}

// Service enforces a bounded-attempts-per-rolling-window policy. The
// counter is consumed before an attempt is processed, so failed attempts
// still count against the quota.
type Service struct {
	store  store
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewService constructs a Service with an in-memory store.
func NewService(limit int, window time.Duration) *Service {
	return &Service{store: newMemoryStore(), limit: limit, window: window, now: time.Now}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store, limit int, window time.Duration) *Service {
	return &Service{store: pgStore, limit: limit, window: window, now: time.Now}
}

// Consume claims one attempt for (userID, operation). It returns the
// updated window, or ErrLimitReached with the current window when the
// quota is exhausted.
func (s *Service) Consume(ctx context.Context, userID, operation string) (Window, error) {
	return s.store.Consume(ctx, userID, operation, s.limit, s.window, s.now().UTC())
}

// Get returns the current window without consuming an attempt.
func (s *Service) Get(ctx context.Context, userID, operation string) (Window, error) {
	return s.store.Get(ctx, userID, operation, s.limit, s.window, s.now().UTC())
}

// Reset clears the window. Dev tooling only.
func (s *Service) Reset(ctx context.Context, userID, operation string) error {
	return s.store.Reset(ctx, userID, operation)
}
