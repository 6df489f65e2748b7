// Package queue implements the durable on-device store of activity records
// awaiting upload.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/greenmiles/internal/domain"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// ErrNotQueued is returned when a record cannot be found by local id.
var ErrNotQueued = errors.New("activity not in local queue")

// Config tunes the underlying SQLite database.
type Config struct {
	// Path to the SQLite database file.
	Path string

	// BusyTimeout is the lock-acquisition timeout in milliseconds.
	BusyTimeout int
}

// DefaultConfig returns the configuration used by the agent unless overridden.
func DefaultConfig(path string) Config {
	return Config{Path: path, BusyTimeout: 5000}
}

// Queue is the append-only local store of activity records. Records enter with
// synced=false and leave either by being purged after a confirmed upload or by
// sitting unsynced past the dead-letter threshold for later inspection.
type Queue struct {
	db *sql.DB
}

// Open opens (and if needed creates) the queue database at cfg.Path.
func Open(cfg Config) (*Queue, error) {
	if cfg.Path == "" {
		return nil, errors.New("queue: path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", cfg.Path, cfg.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}

	q := &Queue{db: db}
	if err := q.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: initialize schema: %w", err)
	}
	return q, nil
}

func (q *Queue) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS activities (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			local_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			distance_km REAL NOT NULL,
			duration_sec INTEGER NOT NULL,
			points INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			start_point TEXT,
			end_point TEXT,
			path TEXT,
			created_at INTEGER NOT NULL,
			remote_id TEXT,
			synced INTEGER NOT NULL DEFAULT 0,
			sync_attempts INTEGER NOT NULL DEFAULT 0,
			last_sync_attempt INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_activities_synced ON activities(synced, seq);
	`
	_, err := q.db.Exec(schema)
	return err
}

// Close releases the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue stores a freshly completed activity with a new local identifier,
// synced=false and zero sync attempts, and returns the assigned local id.
// A storage fault is returned to the caller: losing a just-completed session
// silently is the worst failure mode this store has.
func (q *Queue) Enqueue(ctx context.Context, activity domain.Activity) (string, error) {
	localID := uuid.NewString()
	createdAt := time.Now().UTC()

	startJSON, err := encodePoint(activity.Start)
	if err != nil {
		return "", err
	}
	endJSON, err := encodePoint(activity.End)
	if err != nil {
		return "", err
	}
	pathJSON, err := encodePath(activity.Path)
	if err != nil {
		return "", err
	}

	const stmt = `INSERT INTO activities
		(local_id, user_id, mode, distance_km, duration_sec, points, started_at, ended_at, start_point, end_point, path, created_at, synced, sync_attempts)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,0,0)`

	_, err = q.db.ExecContext(ctx, stmt,
		localID,
		activity.UserID,
		string(activity.Mode),
		activity.DistanceKM,
		activity.DurationSec,
		activity.Points,
		activity.StartedAt.UTC().UnixNano(),
		activity.EndedAt.UTC().UnixNano(),
		startJSON,
		endJSON,
		pathJSON,
		createdAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	return localID, nil
}

// ListUnsynced returns a snapshot of all unsynced records in insertion order.
func (q *Queue) ListUnsynced(ctx context.Context) ([]domain.Activity, error) {
	const query = `SELECT local_id, user_id, mode, distance_km, duration_sec, points, started_at, ended_at, start_point, end_point, path, created_at, remote_id, synced, sync_attempts, last_sync_attempt
		FROM activities WHERE synced = 0 ORDER BY seq`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Activity, 0)
	for rows.Next() {
		record, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkSynced records the remote identifier and flips the synced flag. Calling
// it again with the same arguments is a no-op.
func (q *Queue) MarkSynced(ctx context.Context, localID, remoteID string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE activities SET synced = 1, remote_id = ? WHERE local_id = ?`,
		remoteID, localID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotQueued, localID)
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and stamps the attempt time.
// It is called before each upload so that a crash mid-upload still counts.
func (q *Queue) IncrementAttempts(ctx context.Context, localID string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE activities SET sync_attempts = sync_attempts + 1, last_sync_attempt = ? WHERE local_id = ?`,
		time.Now().UTC().UnixNano(), localID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotQueued, localID)
	}
	return nil
}

// PurgeSynced deletes confirmed records, returning the number removed. Their
// truth now lives in the remote store; this is space reclamation only.
func (q *Queue) PurgeSynced(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM activities WHERE synced = 1`)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// PendingCount reports how many records still await upload.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE synced = 0`).Scan(&count)
	return count, err
}

// Get fetches a single record by local id.
func (q *Queue) Get(ctx context.Context, localID string) (*domain.Activity, error) {
	const query = `SELECT local_id, user_id, mode, distance_km, duration_sec, points, started_at, ended_at, start_point, end_point, path, created_at, remote_id, synced, sync_attempts, last_sync_attempt
		FROM activities WHERE local_id = ?`

	rows, err := q.db.QueryContext(ctx, query, localID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNotQueued, localID)
	}
	record, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func scanActivity(rows *sql.Rows) (domain.Activity, error) {
	var (
		record        domain.Activity
		mode          string
		startedAt     int64
		endedAt       int64
		createdAt     int64
		startJSON     sql.NullString
		endJSON       sql.NullString
		pathJSON      sql.NullString
		remoteID      sql.NullString
		synced        int
		lastAttemptNS sql.NullInt64
	)

	if err := rows.Scan(&record.LocalID, &record.UserID, &mode, &record.DistanceKM, &record.DurationSec, &record.Points,
		&startedAt, &endedAt, &startJSON, &endJSON, &pathJSON, &createdAt, &remoteID, &synced, &record.SyncAttempts, &lastAttemptNS); err != nil {
		return domain.Activity{}, err
	}

	record.Mode = domain.Mode(mode)
	record.StartedAt = time.Unix(0, startedAt).UTC()
	record.EndedAt = time.Unix(0, endedAt).UTC()
	record.CreatedAt = time.Unix(0, createdAt).UTC()
	record.Synced = synced != 0
	if remoteID.Valid {
		record.RemoteID = remoteID.String
	}
	if lastAttemptNS.Valid {
		ts := time.Unix(0, lastAttemptNS.Int64).UTC()
		record.LastSyncAttempt = &ts
	}

	var err error
	if record.Start, err = decodePoint(startJSON); err != nil {
		return domain.Activity{}, err
	}
	if record.End, err = decodePoint(endJSON); err != nil {
		return domain.Activity{}, err
	}
	if record.Path, err = decodePath(pathJSON); err != nil {
		return domain.Activity{}, err
	}
	return record, nil
}

func encodePoint(p *domain.GeoPoint) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(body), nil
}

func decodePoint(raw sql.NullString) (*domain.GeoPoint, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var p domain.GeoPoint
	if err := json.Unmarshal([]byte(raw.String), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func encodePath(path []domain.GeoPoint) (interface{}, error) {
	if len(path) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(path)
	if err != nil {
		return nil, err
	}
	return string(body), nil
}

func decodePath(raw sql.NullString) ([]domain.GeoPoint, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var path []domain.GeoPoint
	if err := json.Unmarshal([]byte(raw.String), &path); err != nil {
		return nil, err
	}
	return path, nil
}
