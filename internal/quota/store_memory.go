package quota

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]Window
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]Window)}
}

func key(userID, operation string) string {
	return userID + "|" + operation
}

func (s *memoryStore) Consume(ctx context.Context, userID, operation string, limit int, window time.Duration, now time.Time) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.ensureLocked(userID, operation, limit, window, now)
	if w.Used >= w.Limit {
		return w, ErrLimitReached
	}
	w.Used++
	s.data[key(userID, operation)] = w
	return w, nil
}

func (s *memoryStore) Get(ctx context.Context, userID, operation string, limit int, window time.Duration, now time.Time) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.ensureLocked(userID, operation, limit, window, now)
	s.data[key(userID, operation)] = w
	return w, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID, operation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key(userID, operation))
	return nil
}

// ensureLocked returns the current window, restarting it from now when the
// previous one has elapsed.
func (s *memoryStore) ensureLocked(userID, operation string, limit int, window time.Duration, now time.Time) Window {
	w, ok := s.data[key(userID, operation)]
	if !ok || !now.Before(w.ResetsAt) {
		w = Window{
			UserID:      userID,
			Operation:   operation,
			Limit:       limit,
			Used:        0,
			WindowStart: now,
			ResetsAt:    now.Add(window),
		}
	}
	return w
}
