package analysis

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds. All orchestration failures are local to the
// request; none of them corrupt persisted Case or Analysis state.
var (
	ErrRateLimited          = errors.New("rate limited")
	ErrTimeout              = errors.New("analysis timed out")
	ErrWorkerUnavailable    = errors.New("analysis worker unavailable")
	ErrInvalidResponseShape = errors.New("worker response contained nothing usable")
	ErrLowConfidence        = errors.New("confidence below threshold")
	ErrPrecondition         = errors.New("precondition failed")
	ErrNotFound             = errors.New("analysis not found")
	ErrStillRunning         = errors.New("analysis still running")
)

// Error codes surfaced in API responses.
const (
	ErrorCodeRateLimited          = "RATE_LIMITED"
	ErrorCodeWorkerTimeout        = "WORKER_TIMEOUT"
	ErrorCodeWorkerUnavailable    = "WORKER_UNAVAILABLE"
	ErrorCodeInvalidResponseShape = "INVALID_RESPONSE_SHAPE"
	ErrorCodeLowConfidence        = "LOW_CONFIDENCE"
	ErrorCodePrecondition         = "PRECONDITION_FAILED"
	ErrorCodeInternal             = "INTERNAL_ERROR"
)

// RateLimitedError carries the remaining-seconds hint.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, try again in %d seconds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// LowConfidenceError carries the measured confidence and the required
// threshold so the caller understands why the result was rejected.
type LowConfidenceError struct {
	Confidence float64
	Threshold  float64
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("confidence %.2f below required threshold %.2f", e.Confidence, e.Threshold)
}

func (e *LowConfidenceError) Is(target error) bool {
	return target == ErrLowConfidence
}

// ClassifyFailure maps an orchestration error to an API error code and
// whether the caller may usefully retry.
func ClassifyFailure(err error) (string, bool) {
	switch {
	case err == nil:
		return ErrorCodeInternal, false
	case errors.Is(err, ErrRateLimited):
		return ErrorCodeRateLimited, true
	case errors.Is(err, ErrTimeout):
		return ErrorCodeWorkerTimeout, true
	case errors.Is(err, ErrWorkerUnavailable):
		return ErrorCodeWorkerUnavailable, false
	case errors.Is(err, ErrInvalidResponseShape):
		return ErrorCodeInvalidResponseShape, false
	case errors.Is(err, ErrLowConfidence):
		return ErrorCodeLowConfidence, false
	case errors.Is(err, ErrPrecondition):
		return ErrorCodePrecondition, false
	default:
		return ErrorCodeInternal, false
	}
}
