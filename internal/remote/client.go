package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example.com/greenmiles/internal/domain"
)

// Client implements Store over the activity-store HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client with sane defaults.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Append persists one activity and returns the generated remote identifier.
func (c *Client) Append(ctx context.Context, activity domain.Activity) (string, error) {
	body, err := json.Marshal(toActivityPayload(activity))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/activities", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", responseError("append activity", resp)
	}

	var payload struct {
		ActivityID string `json:"activity_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.ActivityID == "" {
		return "", fmt.Errorf("append activity: response missing activity_id")
	}
	return payload.ActivityID, nil
}

// ListByUser returns up to maxCount records for one user, most recent first.
func (c *Client) ListByUser(ctx context.Context, userID string, maxCount int) ([]domain.Activity, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("limit", strconv.Itoa(maxCount))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/activities?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, responseError("list activities", resp)
	}

	var payload struct {
		Items []activityPayload `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	records := make([]domain.Activity, 0, len(payload.Items))
	for _, item := range payload.Items {
		records = append(records, item.toDomain())
	}
	return records, nil
}

// ReadProfile returns the user's profile, or nil if none exists yet.
func (c *Client) ReadProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/profiles/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, responseError("read profile", resp)
	}

	var payload profilePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	profile := payload.toDomain()
	return &profile, nil
}

// WriteProfile merge-writes the provided fields into the user's profile.
func (c *Client) WriteProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	body, err := json.Marshal(profilePatchPayload{
		PointBalance:        update.PointBalance,
		ActivitiesCompleted: update.ActivitiesCompleted,
		TotalDistanceKM:     update.TotalDistanceKM,
		TotalDurationSec:    update.TotalDurationSec,
		Level:               update.Level,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/v1/profiles/"+url.PathEscape(userID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError("write profile", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) prepare(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: remote store returned %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}

// activityPayload is the wire representation of a domain.Activity.
type activityPayload struct {
	ActivityID  string            `json:"activity_id,omitempty"`
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

func toActivityPayload(activity domain.Activity) activityPayload {
	return activityPayload{
		ClientRef:   activity.LocalID,
		UserID:      activity.UserID,
		Mode:        string(activity.Mode),
		DistanceKM:  activity.DistanceKM,
		DurationSec: activity.DurationSec,
		Points:      activity.Points,
		StartedAt:   activity.StartedAt,
		EndedAt:     activity.EndedAt,
		Start:       activity.Start,
		End:         activity.End,
		Path:        activity.Path,
	}
}

func (p activityPayload) toDomain() domain.Activity {
	return domain.Activity{
		RemoteID:    p.ActivityID,
		LocalID:     p.ClientRef,
		UserID:      p.UserID,
		Mode:        domain.Mode(p.Mode),
		DistanceKM:  p.DistanceKM,
		DurationSec: p.DurationSec,
		Points:      p.Points,
		StartedAt:   p.StartedAt,
		EndedAt:     p.EndedAt,
		Start:       p.Start,
		End:         p.End,
		Path:        p.Path,
		Synced:      true,
	}
}

type profilePayload struct {
	UserID              string  `json:"user_id"`
	PointBalance        int     `json:"point_balance"`
	ActivitiesCompleted int     `json:"activities_completed"`
	TotalDistanceKM     float64 `json:"total_distance_km"`
	TotalDurationSec    int     `json:"total_duration_sec"`
	Level               int     `json:"level"`
}

func (p profilePayload) toDomain() domain.Profile {
	return domain.Profile{
		UserID:              p.UserID,
		PointBalance:        p.PointBalance,
		ActivitiesCompleted: p.ActivitiesCompleted,
		TotalDistanceKM:     p.TotalDistanceKM,
		TotalDurationSec:    p.TotalDurationSec,
		Level:               p.Level,
	}
}

type profilePatchPayload struct {
	PointBalance        *int     `json:"point_balance,omitempty"`
	ActivitiesCompleted *int     `json:"activities_completed,omitempty"`
	TotalDistanceKM     *float64 `json:"total_distance_km,omitempty"`
	TotalDurationSec    *int     `json:"total_duration_sec,omitempty"`
	Level               *int     `json:"level,omitempty"`
}
