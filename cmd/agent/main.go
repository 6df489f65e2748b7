package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/greenmiles/internal/agent"
	"example.com/greenmiles/internal/config"
	"example.com/greenmiles/internal/queue"
	"example.com/greenmiles/internal/remote"
	"example.com/greenmiles/internal/scheduler"
	"example.com/greenmiles/internal/session"
	"example.com/greenmiles/internal/stats"
	"example.com/greenmiles/internal/syncer"
	httptransport "example.com/greenmiles/internal/transport/http"
)

func main() {
	cfg := config.LoadAgent()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localQueue, err := queue.Open(queue.DefaultConfig(cfg.QueuePath))
	if err != nil {
		log.Fatalf("failed to open local queue: %v", err)
	}
	defer localQueue.Close()

	store := remote.NewClient(cfg.StoreBaseURL, cfg.StoreToken)
	sessions := session.NewManager()
	reconciler := stats.NewReconciler(store, stats.WithHistoryLimit(cfg.HistoryLimit))
	engine := syncer.NewEngine(localQueue, store, reconciler, sessions,
		syncer.WithMaxAttempts(cfg.SyncMaxAttempts))
	sched := scheduler.New(engine, cfg.SyncInterval)

	if cfg.UserID != "" {
		sessions.Begin(cfg.UserID, cfg.StoreToken)
		sched.Start(ctx)
		log.Printf("session started (user_id=%s, interval=%s)", cfg.UserID, cfg.SyncInterval)
	} else {
		log.Printf("no USER_ID configured; sync stays idle until a session begins")
	}

	control := agent.NewControl(localQueue, engine, sched, store, sessions)
	mux := http.NewServeMux()
	control.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.ControlAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, mux)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("agent control listening on %s", cfg.ControlAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("control server error: %v", err)
		}
	}()

	<-shutdownCh

	// Session teardown first: stop arming triggers, let an in-flight pass
	// finish, then drop the session so no further passes can start.
	sched.Stop()
	sessions.End()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
