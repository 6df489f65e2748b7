// Package scheduler owns the triggers that start sync passes.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/greenmiles/internal/syncer"
)

type passRunner interface {
	Run(ctx context.Context) syncer.Report
}

// Option configures optional behaviour for the Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the logger used to report pass results.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler runs one sync pass immediately on start, one every fixed interval,
// and one on every background-to-foreground transition. It is constructed once
// per user session and torn down explicitly on logout so no ticker outlives
// the session.
type Scheduler struct {
	engine     passRunner
	interval   time.Duration
	logger     *log.Logger
	foreground chan struct{}

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// New constructs a stopped Scheduler.
func New(engine passRunner, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:     engine,
		interval:   interval,
		logger:     log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
		foreground: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the trigger loop. The supplied context is handed to each
// pass; it should span the whole process so that Stop lets an in-flight pass
// finish instead of interrupting its uploads.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
}

// Foreground signals that the app returned to the foreground. Connectivity is
// more likely to have changed, so one extra pass is triggered. Signals
// arriving while one is already pending are coalesced.
func (s *Scheduler) Foreground() {
	select {
	case s.foreground <- struct{}{}:
	default:
	}
}

// Stop cancels the recurring trigger and waits for the loop to exit. A pass
// already in flight finishes; no new triggers are armed afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx)
		case <-s.foreground:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	report := s.engine.Run(ctx)
	if report.Ran && (report.Uploaded > 0 || report.Failed > 0 || report.Skipped > 0) {
		s.logger.Printf("pass finished (uploaded=%d, failed=%d, skipped=%d, purged=%d)",
			report.Uploaded, report.Failed, report.Skipped, report.Purged)
	}
}
