package cases

import (
	"context"
	"time"
)

// Repo defines persistence operations for cases. The case record store owns
// all case fields; everything else requests transitions through the Service.
type Repo interface {
	Create(ctx context.Context, c Case) error
	GetByID(ctx context.Context, caseID string) (Case, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Case, error)
	UpdateStatus(ctx context.Context, caseID string, status Status, currentStep, nextActionLabel string, updatedAt time.Time) error
	UpdateClaim(ctx context.Context, caseID string, claimAmount float64, updatedAt time.Time) error
	Touch(ctx context.Context, caseID string, updatedAt time.Time) error
}
