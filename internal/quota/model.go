package quota

import (
	"errors"
	"time"
)

// ErrLimitReached is returned when the attempt quota is exhausted.
var ErrLimitReached = errors.New("attempt limit reached")

// Window is one rolling attempt window keyed by user and operation.
type Window struct {
	UserID      string    `json:"userId"`
	Operation   string    `json:"operation"`
	Limit       int       `json:"limit"`
	Used        int       `json:"used"`
	WindowStart time.Time `json:"windowStart"`
	ResetsAt    time.Time `json:"resetsAt"`
}
