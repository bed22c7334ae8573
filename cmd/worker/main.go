package main

import (
	"blindchat/backend/internal/chathub"
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/queue"
	"blindchat/backend/internal/storage"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func workerConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required for the expiry worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	s := storage.NewStorageService(db)

	// Teardowns must reach the API instances' subscribers.
	var bus pubsub.Bus
	switch cfg.Bus {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		bus, err = pubsub.NewRedisBus(ctx, rdb)
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err == nil {
			defer pool.Close()
			bus, err = pubsub.NewPostgresBus(ctx, pool)
		}
	default:
		log.Println("WARNING: BUS=memory; connected clients learn about expiries from their own countdown.")
		bus = pubsub.NewMemoryBus()
	}
	if err != nil {
		log.Fatalf("Failed to open change feed: %v", err)
	}
	defer bus.Close()

	scheduler, err := queue.NewScheduler(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("Failed to connect RabbitMQ: %v", err)
	}
	defer scheduler.Close()

	concurrency := workerConcurrency(cfg.WorkerConcurrency)
	deliveries, closeCh, err := scheduler.Consume(concurrency)
	if err != nil {
		log.Fatalf("Failed to consume %s: %v", cfg.RabbitQueue, err)
	}
	defer closeCh()

	reaper := chathub.NewReaper(s, bus)
	consumer := queue.NewConsumer(reaper, scheduler, cfg.WorkerMaxAttempts)

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)
	consumer.Run(ctx, deliveries, concurrency)
}
