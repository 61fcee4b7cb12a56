package documents

import (
	"context"
	"time"
)

// ClaimRequest asks the repository to move a document into processing.
type ClaimRequest struct {
	ID      string
	ClaimID string
	// AllowDone lets an explicit reprocess claim a done document directly.
	AllowDone bool
	At        time.Time
}

// EligibleQuery selects documents for the sweeper.
type EligibleQuery struct {
	MaxAttempts int
	Limit       int
}

// Repo persists documents. Status changes happen only through Claim, Complete, Fail,
// Rearm and RecoverStale, each a single conditional write.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, f Filter) ([]Document, error)

	// Claim sets processing, bumps attempt_count and stores a fresh claim id. It returns
	// ErrAlreadyProcessing, without side effects, when the status is not claimable.
	Claim(ctx context.Context, req ClaimRequest) (Document, error)
	// Complete and Fail return ErrStaleClaim when the claim id no longer matches.
	Complete(ctx context.Context, id, claimID string, c Completion) (Document, error)
	Fail(ctx context.Context, id, claimID string, f Failure) (Document, error)
	// Rearm moves done or error back to pending. Pending is returned unchanged.
	Rearm(ctx context.Context, id string, at time.Time) (Document, error)
	// RecoverStale moves processing documents claimed before cutoff back to pending.
	RecoverStale(ctx context.Context, cutoff, at time.Time) ([]string, error)
	// ListEligible returns pending and retryable error documents below the attempt
	// ceiling, oldest updated_at first.
	ListEligible(ctx context.Context, q EligibleQuery) ([]Document, error)

	AssignVehicle(ctx context.Context, id, vehicleRef string, at time.Time) (Document, error)
}
