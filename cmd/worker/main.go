package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"edtrack/internal/attendance"
	"edtrack/internal/config"
	"edtrack/internal/queue"
	"edtrack/internal/store"
)

// Worker consumes mark events and folds them into per-session summaries so
// dashboards can read a cheap Redis hash instead of scanning records.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, store.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	repo := attendance.NewRepository(db.Client)
	summaries := attendance.NewSummaryStore(redisClient.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeMarked {
			continue
		}

		evt, err := queue.DecodeMarked(msg)
		if err != nil {
			log.Printf("malformed marked event: %v", err)
			continue
		}

		rec, err := repo.GetRecord(ctx, evt.RecordID)
		if err != nil {
			log.Printf("fetch record %s failed: %v", evt.RecordID, err)
			continue
		}

		if err := summaries.Apply(ctx, rec); err != nil {
			log.Printf("summary update for session %s failed: %v", rec.SessionID, err)
			continue
		}
		log.Printf("session %s: recorded %s via %s (%.0f m from center)", rec.SessionID, rec.StudentID, rec.Method, rec.DistanceM)
	}

	log.Println("worker stopped")
}
