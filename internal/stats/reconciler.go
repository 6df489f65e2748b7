// Package stats reconciles the user aggregate profile against the remote
// activity history.
package stats

import (
	"context"
	"fmt"

	"example.com/greenmiles/internal/domain"
	"example.com/greenmiles/internal/remote"
)

// defaultHistoryLimit bounds how much history a recompute fetches. A few
// thousand records covers realistic device histories.
const defaultHistoryLimit = 5000

// Option configures optional behaviour for the Reconciler.
type Option func(*Reconciler)

// WithHistoryLimit overrides the page size used when summing remote history.
func WithHistoryLimit(limit int) Option {
	return func(r *Reconciler) {
		if limit > 0 {
			r.historyLimit = limit
		}
	}
}

// Reconciler owns the two halves of the aggregate profile: the derived fields,
// recomputed from the remote history, and the point balance, adjusted only by
// explicit credit/debit operations. The two are deliberately separate calls; a
// single "recompute everything" would silently undo reward redemptions.
type Reconciler struct {
	store        remote.Store
	historyLimit int
}

// NewReconciler constructs a Reconciler backed by the given store.
func NewReconciler(store remote.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:        store,
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecomputeDerivedStats sums the user's remote history and writes the derived
// fields (count, distance, duration) to the profile. It never touches the
// point balance. The operation is idempotent: calling it again with no new
// remote writes produces the same profile, which is what makes it the
// self-healing path after a partial failure.
func (r *Reconciler) RecomputeDerivedStats(ctx context.Context, userID string) error {
	history, err := r.store.ListByUser(ctx, userID, r.historyLimit)
	if err != nil {
		return fmt.Errorf("recompute stats: list history: %w", err)
	}

	count := len(history)
	var totalDistance float64
	var totalDuration int
	for _, record := range history {
		totalDistance += record.DistanceKM
		totalDuration += record.DurationSec
	}

	update := remote.ProfileUpdate{
		ActivitiesCompleted: &count,
		TotalDistanceKM:     &totalDistance,
		TotalDurationSec:    &totalDuration,
	}
	if err := r.store.WriteProfile(ctx, userID, update); err != nil {
		return fmt.Errorf("recompute stats: write profile: %w", err)
	}
	return nil
}

// CreditPoints adds points to the balance and refreshes the derived level.
// Called exactly once per confirmed-synced activity.
func (r *Reconciler) CreditPoints(ctx context.Context, userID string, points int) error {
	if points < 0 {
		return fmt.Errorf("credit points: negative amount %d", points)
	}
	balance, err := r.currentBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("credit points: %w", err)
	}
	return r.writeBalance(ctx, userID, balance+points)
}

// DebitPoints subtracts a redemption cost from the balance. It rejects with
// domain.ErrInsufficientBalance when the cost exceeds the current balance and
// never lets the balance go negative.
func (r *Reconciler) DebitPoints(ctx context.Context, userID string, cost int) error {
	if cost < 0 {
		return fmt.Errorf("debit points: negative cost %d", cost)
	}
	balance, err := r.currentBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("debit points: %w", err)
	}
	if cost > balance {
		return fmt.Errorf("debit %d from balance %d: %w", cost, balance, domain.ErrInsufficientBalance)
	}
	return r.writeBalance(ctx, userID, balance-cost)
}

func (r *Reconciler) currentBalance(ctx context.Context, userID string) (int, error) {
	profile, err := r.store.ReadProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		// New identity: the profile starts zeroed.
		return 0, nil
	}
	return profile.PointBalance, nil
}

func (r *Reconciler) writeBalance(ctx context.Context, userID string, balance int) error {
	level := domain.LevelForBalance(balance)
	update := remote.ProfileUpdate{
		PointBalance: &balance,
		Level:        &level,
	}
	if err := r.store.WriteProfile(ctx, userID, update); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}
