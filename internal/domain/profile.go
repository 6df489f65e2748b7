package domain

import "errors"

// ErrInsufficientBalance is returned when a redemption costs more than the
// current point balance.
var ErrInsufficientBalance = errors.New("insufficient point balance")

// ErrProfileNotFound is returned when no profile exists for a user.
var ErrProfileNotFound = errors.New("profile not found")

// Profile holds the display-facing aggregates for one user.
//
// ActivitiesCompleted, TotalDistanceKM and TotalDurationSec are derived: they
// are always recomputed from the remote activity history and never patched
// incrementally. PointBalance is ledger state: it is only ever adjusted by
// explicit credits (synced activities) and debits (reward redemptions), because
// resumming it from history would erase spent balances.
type Profile struct {
	UserID              string
	PointBalance        int
	ActivitiesCompleted int
	TotalDistanceKM     float64
	TotalDurationSec    int
	Level               int
}

// LevelForBalance maps a point balance to a display level.
func LevelForBalance(balance int) int {
	return balance/100 + 1
}
