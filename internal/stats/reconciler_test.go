package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/greenmiles/internal/domain"
	"example.com/greenmiles/internal/remote"
)

type fakeStore struct {
	history  []domain.Activity
	profiles map[string]*domain.Profile

	listErr  error
	writeErr error

	listCalls  int
	writeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[string]*domain.Profile)}
}

func (s *fakeStore) Append(ctx context.Context, activity domain.Activity) (string, error) {
	return "", errors.New("not used")
}

func (s *fakeStore) ListByUser(ctx context.Context, userID string, maxCount int) ([]domain.Activity, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Activity, 0, len(s.history))
	for _, record := range s.history {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	if len(out) > maxCount {
		out = out[:maxCount]
	}
	return out, nil
}

func (s *fakeStore) ReadProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	copied := *profile
	return &copied, nil
}

func (s *fakeStore) WriteProfile(ctx context.Context, userID string, update remote.ProfileUpdate) error {
	s.writeCalls++
	if s.writeErr != nil {
		return s.writeErr
	}
	profile, ok := s.profiles[userID]
	if !ok {
		profile = &domain.Profile{UserID: userID, Level: domain.LevelForBalance(0)}
		s.profiles[userID] = profile
	}
	if update.PointBalance != nil {
		profile.PointBalance = *update.PointBalance
	}
	if update.ActivitiesCompleted != nil {
		profile.ActivitiesCompleted = *update.ActivitiesCompleted
	}
	if update.TotalDistanceKM != nil {
		profile.TotalDistanceKM = *update.TotalDistanceKM
	}
	if update.TotalDurationSec != nil {
		profile.TotalDurationSec = *update.TotalDurationSec
	}
	if update.Level != nil {
		profile.Level = *update.Level
	}
	return nil
}

func TestRecomputeDerivedStatsSumsRemoteHistory(t *testing.T) {
	store := newFakeStore()
	store.history = []domain.Activity{
		{UserID: "user-1", DistanceKM: 2.5, DurationSec: 900, Points: 25},
		{UserID: "user-1", DistanceKM: 1.5, DurationSec: 600, Points: 15},
		{UserID: "user-2", DistanceKM: 9.0, DurationSec: 1800, Points: 90},
	}

	reconciler := NewReconciler(store)
	require.NoError(t, reconciler.RecomputeDerivedStats(context.Background(), "user-1"))

	profile := store.profiles["user-1"]
	require.NotNil(t, profile)
	require.Equal(t, 2, profile.ActivitiesCompleted)
	require.InDelta(t, 4.0, profile.TotalDistanceKM, 1e-9)
	require.Equal(t, 1500, profile.TotalDurationSec)
}

func TestRecomputeDerivedStatsIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.history = []domain.Activity{
		{UserID: "user-1", DistanceKM: 3.0, DurationSec: 1200},
	}

	reconciler := NewReconciler(store)
	ctx := context.Background()

	require.NoError(t, reconciler.RecomputeDerivedStats(ctx, "user-1"))
	first := *store.profiles["user-1"]

	require.NoError(t, reconciler.RecomputeDerivedStats(ctx, "user-1"))
	require.NoError(t, reconciler.RecomputeDerivedStats(ctx, "user-1"))
	require.Equal(t, first, *store.profiles["user-1"])
}

func TestRecomputeNeverTouchesPointBalance(t *testing.T) {
	store := newFakeStore()
	store.history = []domain.Activity{
		{UserID: "user-1", DistanceKM: 2.5, DurationSec: 900, Points: 25},
	}

	reconciler := NewReconciler(store)
	ctx := context.Background()

	// Credit, spend, then recompute: the balance must survive because it is
	// ledger state, not a derivable sum.
	require.NoError(t, reconciler.CreditPoints(ctx, "user-1", 250))
	require.NoError(t, reconciler.DebitPoints(ctx, "user-1", 100))
	require.NoError(t, reconciler.RecomputeDerivedStats(ctx, "user-1"))

	profile := store.profiles["user-1"]
	require.Equal(t, 150, profile.PointBalance)
	require.Equal(t, 1, profile.ActivitiesCompleted)
}

func TestCreditPointsUpdatesBalanceAndLevel(t *testing.T) {
	store := newFakeStore()
	reconciler := NewReconciler(store)
	ctx := context.Background()

	require.NoError(t, reconciler.CreditPoints(ctx, "user-1", 25))
	require.Equal(t, 25, store.profiles["user-1"].PointBalance)
	require.Equal(t, 1, store.profiles["user-1"].Level)

	require.NoError(t, reconciler.CreditPoints(ctx, "user-1", 180))
	require.Equal(t, 205, store.profiles["user-1"].PointBalance)
	require.Equal(t, 3, store.profiles["user-1"].Level)
}

func TestDebitPointsRejectsInsufficientBalance(t *testing.T) {
	store := newFakeStore()
	reconciler := NewReconciler(store)
	ctx := context.Background()

	require.NoError(t, reconciler.CreditPoints(ctx, "user-1", 50))

	err := reconciler.DebitPoints(ctx, "user-1", 80)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.Equal(t, 50, store.profiles["user-1"].PointBalance)
}

func TestDebitPointsSpendsDownToZero(t *testing.T) {
	store := newFakeStore()
	reconciler := NewReconciler(store)
	ctx := context.Background()

	require.NoError(t, reconciler.CreditPoints(ctx, "user-1", 120))
	require.NoError(t, reconciler.DebitPoints(ctx, "user-1", 120))

	require.Equal(t, 0, store.profiles["user-1"].PointBalance)
	require.Equal(t, 1, store.profiles["user-1"].Level)
}

func TestHistoryLimitBoundsRecompute(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 10; i++ {
		store.history = append(store.history, domain.Activity{UserID: "user-1", DistanceKM: 1, DurationSec: 60})
	}

	reconciler := NewReconciler(store, WithHistoryLimit(4))
	require.NoError(t, reconciler.RecomputeDerivedStats(context.Background(), "user-1"))
	require.Equal(t, 4, store.profiles["user-1"].ActivitiesCompleted)
}

func TestRecomputeListFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("store unreachable")

	reconciler := NewReconciler(store)
	err := reconciler.RecomputeDerivedStats(context.Background(), "user-1")
	require.Error(t, err)
	require.Zero(t, store.writeCalls)
}
