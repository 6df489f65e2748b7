// Package domain defines the core records shared by the agent and the store service.
package domain

import "time"

// Mode identifies how a session was travelled.
type Mode string

const (
	ModeWalk    Mode = "walk"
	ModeCycle   Mode = "cycle"
	ModeTransit Mode = "transit"
)

// GeoPoint is a single coordinate sample along a recorded route.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Activity represents one completed movement session.
//
// LocalID is assigned by the device when the capture session ends and stays
// stable until the record is confirmed remotely. RemoteID is empty until the
// first successful upload.
type Activity struct {
	LocalID         string
	RemoteID        string
	UserID          string
	Mode            Mode
	DistanceKM      float64
	DurationSec     int
	Points          int
	StartedAt       time.Time
	EndedAt         time.Time
	Start           *GeoPoint
	End             *GeoPoint
	Path            []GeoPoint
	CreatedAt       time.Time
	Synced          bool
	SyncAttempts    int
	LastSyncAttempt *time.Time
}
