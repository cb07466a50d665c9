package analysis

import "context"

// Repo defines persistence for analyses and dispatch records. Analyses are
// append-only: a new record never overwrites an old one.
type Repo interface {
	CreateAnalysis(ctx context.Context, a Analysis) error
	GetAnalysis(ctx context.Context, analysisID string) (Analysis, error)
	ListByCase(ctx context.Context, caseID string) ([]Analysis, error)
	LatestByCase(ctx context.Context, caseID string) (Analysis, error)
	CountByCase(ctx context.Context, caseID string) (int, error)

	CreateRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, requestID string) (Request, error)
	UpdateRequest(ctx context.Context, requestID, status, threadID, errMessage string) error

	// ClaimRequest atomically moves a pending request to completed,
	// recording the thread it resolved from. It reports false when the
	// request was no longer pending, so concurrent finalizers resolve a
	// run exactly once.
	ClaimRequest(ctx context.Context, requestID, threadID string) (bool, error)
}
