package main

import (
	"blindchat/backend/internal/api/handler"
	"blindchat/backend/internal/auth"
	"blindchat/backend/internal/chathub"
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/connection"
	"blindchat/backend/internal/localization"
	"blindchat/backend/internal/media"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/queue"
	"blindchat/backend/internal/storage"
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, pubsub.Bus) {
	db, err := storage.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	if err := storage.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var rdb *redis.Client
	if cfg.Bus == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
	}

	bus, err := openBus(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("Failed to open change feed: %v", err)
	}

	log.Printf("Database (%s) and %s change feed ready.", cfg.DBDriver, cfg.Bus)
	return db, rdb, bus
}

func openBus(ctx context.Context, cfg *config.Config, rdb *redis.Client) (pubsub.Bus, error) {
	switch cfg.Bus {
	case "redis":
		return pubsub.NewRedisBus(ctx, rdb)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pubsub.NewPostgresBus(ctx, pool)
	}
	log.Println("WARNING: Using in-process change feed; run a single API instance.")
	return pubsub.NewMemoryBus(), nil
}

func main() {
	log.Println("Starting BlindChat Backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Ініціалізація залежностей
	db, rdb, bus := setupDependencies(ctx, cfg)
	defer bus.Close()
	s := storage.NewStorageService(db)

	localizer, err := localization.Default()
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if rdb != nil {
		revoker = auth.NewRedisRevoker(rdb)
	}
	authSvc := auth.NewService(cfg.JWTSecret, cfg.TokenTTL, revoker)

	// 2. Ініціалізація Chat Hub
	connections := connection.NewService(s, bus)
	svc := chathub.NewServices(s, bus, connections)
	svc.Notices = localizer.Notices(cfg.DefaultLanguage)

	if cfg.RabbitURL != "" {
		scheduler, err := queue.NewScheduler(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("Failed to connect RabbitMQ: %v", err)
		}
		defer scheduler.Close()
		svc.Scheduler = scheduler
	} else {
		log.Println("WARNING: RABBIT_URL not set; sessions expire through clients and the sweeper only.")
	}

	hub := chathub.NewManagerService(svc)
	sweeper := chathub.NewSweeper(s, svc.Reaper, cfg.OrphanTimeout, cfg.SweepInterval)

	// 3. Запуск основних Goroutines
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx) // Головний диспетчер
		close(hubDone)
	}()
	go sweeper.Run(ctx)

	// 4. Налаштування Gin та роутингу
	h := handler.NewHandler(hub, authSvc, connections, media.NewUploader(cfg.UploadURL, cfg.UploadPreset), localizer, cfg.DefaultLanguage)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        handler.NewRouter(h),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("INFO: Listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("INFO: Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: HTTP shutdown: %v", err)
	}
	<-hubDone
}
