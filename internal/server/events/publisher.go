// Package events publishes store-side notifications for downstream analytics.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/greenmiles/internal/domain"
)

// DefaultTopic is where activity.recorded events land unless overridden.
const DefaultTopic = "activity_recorded"

// ActivityRecorded is emitted once per accepted append. Consumers must
// tolerate duplicates: the device engine retries uploads at-least-once.
type ActivityRecorded struct {
	ActivityID  string    `json:"activity_id"`
	ClientRef   string    `json:"client_ref,omitempty"`
	UserID      string    `json:"user_id"`
	Mode        string    `json:"mode"`
	DistanceKM  float64   `json:"distance_km"`
	DurationSec int       `json:"duration_sec"`
	Points      int       `json:"points"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Publisher writes activity events to Kafka. Publishing is best-effort: a
// broker outage is logged and the append still succeeds, since the Postgres
// row is the source of truth and aggregates are recomputed from it.
type Publisher struct {
	writer *kafka.Writer
	logger *log.Logger
}

// NewPublisher constructs a Publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
			Async:        false,
		},
		logger: log.New(log.Writer(), "[events] ", log.LstdFlags),
	}
}

// ActivityRecorded publishes one event keyed by user so per-user ordering is
// preserved within a partition.
func (p *Publisher) ActivityRecorded(ctx context.Context, remoteID string, activity domain.Activity) {
	event := ActivityRecorded{
		ActivityID:  remoteID,
		ClientRef:   activity.LocalID,
		UserID:      activity.UserID,
		Mode:        string(activity.Mode),
		DistanceKM:  activity.DistanceKM,
		DurationSec: activity.DurationSec,
		Points:      activity.Points,
		StartedAt:   activity.StartedAt,
		EndedAt:     activity.EndedAt,
		RecordedAt:  time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("marshal activity.recorded (activity_id=%s): %v", remoteID, err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(activity.UserID),
		Value: body,
		Time:  event.RecordedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("activity.recorded")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Printf("publish activity.recorded (activity_id=%s): %v", remoteID, err)
	}
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
