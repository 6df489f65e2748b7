// Package remote defines the narrow interface the engine uses to talk to the
// authoritative activity store, plus the HTTP client implementing it.
package remote

import (
	"context"

	"example.com/greenmiles/internal/domain"
)

// ProfileUpdate is a merge-write of profile fields: only non-nil fields are
// applied. Keeping the update partial is what lets the reconciler write the
// derived fields without ever touching the point balance, and vice versa.
type ProfileUpdate struct {
	PointBalance        *int
	ActivitiesCompleted *int
	TotalDistanceKM     *float64
	TotalDurationSec    *int
	Level               *int
}

// Store is the engine's view of the remote activity store. The remote history
// is the single source of truth for aggregation; the local queue only buffers
// records on their way there.
type Store interface {
	// Append persists one activity under its owning user and returns the
	// generated remote identifier.
	Append(ctx context.Context, activity domain.Activity) (string, error)

	// ListByUser returns up to maxCount records for one user, most recent
	// first.
	ListByUser(ctx context.Context, userID string, maxCount int) ([]domain.Activity, error)

	// ReadProfile returns the user's aggregate profile, or nil if none has
	// been written yet.
	ReadProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// WriteProfile merge-writes the provided fields into the user's profile.
	WriteProfile(ctx context.Context, userID string, update ProfileUpdate) error
}
