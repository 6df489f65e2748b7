// Package syncer moves unsynced activity records to the remote store.
package syncer

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"example.com/greenmiles/internal/domain"
	"example.com/greenmiles/internal/observability"
)

// defaultMaxAttempts is the dead-letter threshold: records that have already
// consumed this many upload attempts are skipped, not retried, and stay in the
// queue for inspection.
const defaultMaxAttempts = 5

type localQueue interface {
	ListUnsynced(ctx context.Context) ([]domain.Activity, error)
	MarkSynced(ctx context.Context, localID, remoteID string) error
	IncrementAttempts(ctx context.Context, localID string) error
	PurgeSynced(ctx context.Context) (int, error)
}

type uploader interface {
	Append(ctx context.Context, activity domain.Activity) (string, error)
}

type ledger interface {
	CreditPoints(ctx context.Context, userID string, points int) error
	RecomputeDerivedStats(ctx context.Context, userID string) error
}

type sessionSource interface {
	UserID() (string, bool)
}

// Report summarises one sync pass. A pass never fails as a whole; individual
// record failures are retried on later passes.
type Report struct {
	Ran      bool
	Uploaded int
	Failed   int
	Skipped  int
	Purged   int
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxAttempts overrides the dead-letter threshold.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// Engine drains the local queue into the remote store. At most one pass runs
// per process at a time; overlapping triggers are dropped, not queued.
type Engine struct {
	queue       localQueue
	store       uploader
	ledger      ledger
	sessions    sessionSource
	maxAttempts int
	logger      *log.Logger
	running     atomic.Bool
}

// NewEngine constructs an Engine.
func NewEngine(queue localQueue, store uploader, ledger ledger, sessions sessionSource, opts ...Option) *Engine {
	e := &Engine{
		queue:       queue,
		store:       store,
		ledger:      ledger,
		sessions:    sessions,
		maxAttempts: defaultMaxAttempts,
		logger:      log.New(log.Writer(), "[sync] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one sync pass. Uploads happen in insertion order; a failed
// record is logged and skipped so that one bad upload never blocks the batch.
// Points are credited inside the success branch only, which is what makes the
// credit exactly-once per record within a pass.
func (e *Engine) Run(ctx context.Context) Report {
	if !e.running.CompareAndSwap(false, true) {
		droppedCounter.Inc()
		return Report{}
	}
	defer e.running.Store(false)

	userID, ok := e.sessions.UserID()
	if !ok {
		// No authenticated session: nothing touches the network.
		return Report{}
	}

	start := time.Now()
	report := Report{Ran: true}
	defer func() {
		passDuration.Observe(time.Since(start).Seconds())
	}()

	records, err := e.queue.ListUnsynced(ctx)
	if err != nil {
		e.logger.Printf("list unsynced failed: %v", err)
		return report
	}

	for _, record := range records {
		if record.SyncAttempts >= e.maxAttempts {
			deadLetteredCounter.Inc()
			report.Skipped++
			continue
		}

		// Counted before the attempt so a crash mid-upload still shows up.
		if err := e.queue.IncrementAttempts(ctx, record.LocalID); err != nil {
			e.logger.Printf("increment attempts (local_id=%s): %v", record.LocalID, err)
			report.Failed++
			continue
		}

		remoteID, err := e.store.Append(ctx, record)
		if err != nil {
			e.logger.Printf("upload failed (local_id=%s, attempt=%d): %v", record.LocalID, record.SyncAttempts+1, err)
			failedCounter.Inc()
			report.Failed++
			continue
		}

		if err := e.queue.MarkSynced(ctx, record.LocalID, remoteID); err != nil {
			// The upload went through; on restart the record is re-uploaded
			// and the remote copy duplicated, the accepted at-least-once cost.
			e.logger.Printf("mark synced (local_id=%s, remote_id=%s): %v", record.LocalID, remoteID, err)
		}

		uploadedCounter.Inc()
		observability.RecordActivitySynced(time.Now().UTC())
		report.Uploaded++

		if err := e.ledger.CreditPoints(ctx, record.UserID, record.Points); err != nil {
			e.logger.Printf("credit points (local_id=%s, points=%d): %v", record.LocalID, record.Points, err)
		}
	}

	if report.Uploaded > 0 {
		purged, err := e.queue.PurgeSynced(ctx)
		if err != nil {
			e.logger.Printf("purge synced: %v", err)
		}
		report.Purged = purged

		// A failed stats refresh must not undo a successful sync; the next
		// recompute heals it.
		if err := e.ledger.RecomputeDerivedStats(ctx, userID); err != nil {
			e.logger.Printf("recompute stats (user_id=%s): %v", userID, err)
		}
	}

	return report
}
