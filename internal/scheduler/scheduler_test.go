package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/greenmiles/internal/syncer"
)

type countingEngine struct {
	runs atomic.Int64
}

func (e *countingEngine) Run(ctx context.Context) syncer.Report {
	e.runs.Add(1)
	return syncer.Report{Ran: true}
}

func discardLogger() *log.Logger {
	return log.New(discardWriter{}, "", 0)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStartRunsImmediatePass(t *testing.T) {
	engine := &countingEngine{}
	sched := New(engine, time.Hour, WithLogger(discardLogger()))

	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return engine.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestIntervalTriggersRecurringPasses(t *testing.T) {
	engine := &countingEngine{}
	sched := New(engine, 10*time.Millisecond, WithLogger(discardLogger()))

	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return engine.runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestForegroundTriggersExtraPass(t *testing.T) {
	engine := &countingEngine{}
	sched := New(engine, time.Hour, WithLogger(discardLogger()))

	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return engine.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	sched.Foreground()

	require.Eventually(t, func() bool {
		return engine.runs.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStopDisarmsAllTriggers(t *testing.T) {
	engine := &countingEngine{}
	sched := New(engine, 10*time.Millisecond, WithLogger(discardLogger()))

	sched.Start(context.Background())

	require.Eventually(t, func() bool {
		return engine.runs.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	sched.Stop()
	after := engine.runs.Load()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, engine.runs.Load())

	// Stop and Foreground after teardown are safe no-ops.
	sched.Stop()
	sched.Foreground()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, engine.runs.Load())
}

func TestStartTwiceKeepsSingleLoop(t *testing.T) {
	engine := &countingEngine{}
	sched := New(engine, time.Hour, WithLogger(discardLogger()))

	sched.Start(context.Background())
	sched.Start(context.Background())
	defer sched.Stop()

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int64(1), engine.runs.Load())
}
