// Package agent exposes the device-local control surface consumed by the UI
// shell: pending-sync count, force-sync, foreground signal and profile read.
package agent

import (
	"context"
	"encoding/json"
	"net/http"

	"example.com/greenmiles/internal/domain"
	"example.com/greenmiles/internal/observability"
	"example.com/greenmiles/internal/syncer"
)

type pendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

type passRunner interface {
	Run(ctx context.Context) syncer.Report
}

type foregrounder interface {
	Foreground()
}

type profileReader interface {
	ReadProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

type sessionSource interface {
	UserID() (string, bool)
}

// Control wires the engine, queue and scheduler to local HTTP endpoints.
type Control struct {
	queue     pendingCounter
	engine    passRunner
	scheduler foregrounder
	store     profileReader
	sessions  sessionSource
}

// NewControl builds a Control.
func NewControl(queue pendingCounter, engine passRunner, scheduler foregrounder, store profileReader, sessions sessionSource) *Control {
	return &Control{
		queue:     queue,
		engine:    engine,
		scheduler: scheduler,
		store:     store,
		sessions:  sessions,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (c *Control) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync/pending", c.pending)
	mux.HandleFunc("/v1/sync/run", c.runNow)
	mux.HandleFunc("/v1/app/foreground", c.foreground)
	mux.HandleFunc("/v1/profile", c.profile)
	mux.HandleFunc("/healthz", healthz)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// PendingResponse reports how many records still await upload.
type PendingResponse struct {
	Pending int `json:"pending"`
}

func (c *Control) pending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	count, err := c.queue.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	observability.SetPendingActivities(count)
	writeJSON(w, http.StatusOK, PendingResponse{Pending: count})
}

// RunResponse summarises a forced sync pass.
type RunResponse struct {
	Ran      bool `json:"ran"`
	Uploaded int  `json:"uploaded"`
	Failed   int  `json:"failed"`
	Skipped  int  `json:"skipped"`
	Purged   int  `json:"purged"`
}

func (c *Control) runNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	report := c.engine.Run(r.Context())
	writeJSON(w, http.StatusOK, RunResponse{
		Ran:      report.Ran,
		Uploaded: report.Uploaded,
		Failed:   report.Failed,
		Skipped:  report.Skipped,
		Purged:   report.Purged,
	})
}

func (c *Control) foreground(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	c.scheduler.Foreground()
	w.WriteHeader(http.StatusAccepted)
}

// ProfileResponse mirrors the reconciled aggregate profile.
type ProfileResponse struct {
	UserID              string  `json:"user_id"`
	PointBalance        int     `json:"point_balance"`
	ActivitiesCompleted int     `json:"activities_completed"`
	TotalDistanceKM     float64 `json:"total_distance_km"`
	TotalDurationSec    int     `json:"total_duration_sec"`
	Level               int     `json:"level"`
}

func (c *Control) profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID, ok := c.sessions.UserID()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no active session")
		return
	}

	profile, err := c.store.ReadProfile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_unreachable", err.Error())
		return
	}
	if profile == nil {
		// New identity: nothing synced yet, report a zeroed profile.
		profile = &domain.Profile{UserID: userID, Level: domain.LevelForBalance(0)}
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		UserID:              profile.UserID,
		PointBalance:        profile.PointBalance,
		ActivitiesCompleted: profile.ActivitiesCompleted,
		TotalDistanceKM:     profile.TotalDistanceKM,
		TotalDurationSec:    profile.TotalDurationSec,
		Level:               profile.Level,
	})
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
