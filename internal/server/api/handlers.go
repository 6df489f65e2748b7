// Package api exposes the HTTP surface of the activity store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/greenmiles/internal/auth"
	"example.com/greenmiles/internal/domain"
	"example.com/greenmiles/internal/remote"
)

const (
	defaultListLimit = 100
	maxListLimit     = 5000
)

type eventSink interface {
	ActivityRecorded(ctx context.Context, remoteID string, activity domain.Activity)
}

// Handler coordinates HTTP requests with the store.
type Handler struct {
	store  remote.Store
	events eventSink
}

// NewHandler builds a Handler. events may be nil when no broker is configured.
func NewHandler(store remote.Store, events eventSink) *Handler {
	return &Handler{store: store, events: events}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/profiles/", h.profileByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.appendActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) profileByID(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/v1/profiles/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.readProfile(w, r, userID)
	case http.MethodPatch:
		h.patchProfile(w, r, userID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) appendActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	var req AppendActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activity := req.toDomain()
	remoteID, err := h.store.Append(r.Context(), activity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if h.events != nil {
		h.events.ActivityRecorded(r.Context(), remoteID, activity)
	}

	writeJSON(w, http.StatusCreated, AppendActivityResponse{ActivityID: remoteID})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > maxListLimit {
				parsed = maxListLimit
			}
			limit = parsed
		}
	}

	records, err := h.store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(records))
	for _, record := range records {
		items = append(items, toActivityView(record))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) readProfile(w http.ResponseWriter, r *http.Request, userID string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProfileRead) && !claims.HasScope(auth.ScopeProfileWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope profile:read required")
		return
	}

	profile, err := h.store.ReadProfile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*profile))
}

func (h *Handler) patchProfile(w http.ResponseWriter, r *http.Request, userID string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProfileWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope profile:write required")
		return
	}

	var req PatchProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	update := remote.ProfileUpdate{
		PointBalance:        req.PointBalance,
		ActivitiesCompleted: req.ActivitiesCompleted,
		TotalDistanceKM:     req.TotalDistanceKM,
		TotalDurationSec:    req.TotalDurationSec,
		Level:               req.Level,
	}
	if err := h.store.WriteProfile(r.Context(), userID, update); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AppendActivityRequest is the payload for POST /v1/activities.
type AppendActivityRequest struct {
	ClientRef   string            `json:"client_ref"`
	UserID      string            `json:"user_id"`
	Mode        string            `json:"mode"`
	DistanceKM  float64           `json:"distance_km"`
	DurationSec int               `json:"duration_sec"`
	Points      int               `json:"points"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Start       *domain.GeoPoint  `json:"start,omitempty"`
	End         *domain.GeoPoint  `json:"end,omitempty"`
	Path        []domain.GeoPoint `json:"path,omitempty"`
}

// Validate ensures request correctness.
func (r AppendActivityRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	switch domain.Mode(r.Mode) {
	case domain.ModeWalk, domain.ModeCycle, domain.ModeTransit:
	default:
		return errors.New("mode must be walk, cycle or transit")
	}
	if r.DistanceKM < 0 {
		return errors.New("distance_km must be >= 0")
	}
	if r.DurationSec < 0 {
		return errors.New("duration_sec must be >= 0")
	}
	if r.Points < 0 {
		return errors.New("points must be >= 0")
	}
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return errors.New("started_at and ended_at are required")
	}
	return nil
}

func (r AppendActivityRequest) toDomain() domain.Activity {
	return domain.Activity{
		LocalID:     r.ClientRef,
		UserID:      r.UserID,
		Mode:        domain.Mode(r.Mode),
		DistanceKM:  r.DistanceKM,
		DurationSec: r.DurationSec,
		Points:      r.Points,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Start:       r.Start,
		End:         r.End,
		Path:        r.Path,
	}
}

// AppendActivityResponse describes the response body for append.
type AppendActivityResponse struct {
	ActivityID string `json:"activity_id"`
}

// ActivityView exposes one stored activity.
type ActivityView struct {
	ActivityID  string            `json:"activity_id"`
	ClientRef   string            `json:"client_ref,omitempty"`
	UserID      string            `json:"user_id"`
	Mode        string            `json:"mode"`
	DistanceKM  float64           `json:"distance_km"`
	DurationSec int               `json:"duration_sec"`
	Points      int               `json:"points"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Start       *domain.GeoPoint  `json:"start,omitempty"`
	End         *domain.GeoPoint  `json:"end,omitempty"`
	Path        []domain.GeoPoint `json:"path,omitempty"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

// ProfileView exposes the aggregate profile.
type ProfileView struct {
	UserID              string  `json:"user_id"`
	PointBalance        int     `json:"point_balance"`
	ActivitiesCompleted int     `json:"activities_completed"`
	TotalDistanceKM     float64 `json:"total_distance_km"`
	TotalDurationSec    int     `json:"total_duration_sec"`
	Level               int     `json:"level"`
}

// PatchProfileRequest is the merge-write payload for PATCH /v1/profiles/{id}.
type PatchProfileRequest struct {
	PointBalance        *int     `json:"point_balance,omitempty"`
	ActivitiesCompleted *int     `json:"activities_completed,omitempty"`
	TotalDistanceKM     *float64 `json:"total_distance_km,omitempty"`
	TotalDurationSec    *int     `json:"total_duration_sec,omitempty"`
	Level               *int     `json:"level,omitempty"`
}

// Validate rejects updates that would corrupt the profile.
func (r PatchProfileRequest) Validate() error {
	if r.PointBalance != nil && *r.PointBalance < 0 {
		return errors.New("point_balance must be >= 0")
	}
	if r.ActivitiesCompleted != nil && *r.ActivitiesCompleted < 0 {
		return errors.New("activities_completed must be >= 0")
	}
	if r.TotalDistanceKM != nil && *r.TotalDistanceKM < 0 {
		return errors.New("total_distance_km must be >= 0")
	}
	if r.TotalDurationSec != nil && *r.TotalDurationSec < 0 {
		return errors.New("total_duration_sec must be >= 0")
	}
	return nil
}

func toActivityView(record domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:  record.RemoteID,
		ClientRef:   record.LocalID,
		UserID:      record.UserID,
		Mode:        string(record.Mode),
		DistanceKM:  record.DistanceKM,
		DurationSec: record.DurationSec,
		Points:      record.Points,
		StartedAt:   record.StartedAt,
		EndedAt:     record.EndedAt,
		Start:       record.Start,
		End:         record.End,
		Path:        record.Path,
	}
}

func toProfileView(profile domain.Profile) ProfileView {
	return ProfileView{
		UserID:              profile.UserID,
		PointBalance:        profile.PointBalance,
		ActivitiesCompleted: profile.ActivitiesCompleted,
		TotalDistanceKM:     profile.TotalDistanceKM,
		TotalDurationSec:    profile.TotalDurationSec,
		Level:               profile.Level,
	}
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
