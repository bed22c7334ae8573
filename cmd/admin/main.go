package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"blindchat/backend/internal/chathub"
	"blindchat/backend/internal/config"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const usage = `Usage: admin <command> [args]

Commands:
  migrate up                 apply SQL migrations (postgres)
  migrate down [steps]       roll back migrations, 1 step by default
  sweep                      tear down ended, orphaned and overdue sessions
  teardown <session_id>      destroy a session and its messages
  user <user_id>             print a directory entry
  session <session_id>       print a session`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	command := os.Args[1]

	if command == "migrate" {
		runMigrate(cfg, os.Args[2:])
		return
	}

	db, err := storage.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db)

	switch command {
	case "sweep":
		reaper := chathub.NewReaper(storageSvc, openBus(ctx, cfg))
		sweeper := chathub.NewSweeper(storageSvc, reaper, cfg.OrphanTimeout, cfg.SweepInterval)
		removed, err := sweeper.Sweep(ctx)
		fmt.Printf("Removed %d session(s).\n", len(removed))
		if err != nil {
			log.Fatalf("Error sweeping sessions: %v", err)
		}
	case "teardown":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin teardown <session_id>")
			os.Exit(1)
		}
		reaper := chathub.NewReaper(storageSvc, openBus(ctx, cfg))
		if err := reaper.Teardown(ctx, os.Args[2]); err != nil {
			log.Fatalf("Error tearing down session: %v", err)
		}
		fmt.Printf("Session %s has been torn down.\n", os.Args[2])
	case "user":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin user <user_id>")
			os.Exit(1)
		}
		user, err := storageSvc.GetUser(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Error loading user: %v", err)
		}
		printJSON(struct {
			Summary any  `json:"summary"`
			Online  bool `json:"online"`
		}{user.Summary(), user.Online})
	case "session":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin session <session_id>")
			os.Exit(1)
		}
		session, err := storageSvc.GetSession(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Error loading session: %v", err)
		}
		printJSON(session)
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func runMigrate(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: admin migrate up|down [steps]")
		os.Exit(1)
	}
	switch args[0] {
	case "up":
		if err := storage.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Error applying migrations: %v", err)
		}
		fmt.Println("Migrations applied.")
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				fmt.Println("Invalid steps. Please provide a positive integer.")
				os.Exit(1)
			}
			steps = n
		}
		if err := storage.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			log.Fatalf("Error rolling back migrations: %v", err)
		}
		fmt.Printf("Rolled back %d migration(s).\n", steps)
	default:
		fmt.Println("Usage: admin migrate up|down [steps]")
		os.Exit(1)
	}
}

// openBus lets running API instances see changes made from the CLI.
func openBus(ctx context.Context, cfg *config.Config) pubsub.Bus {
	switch cfg.Bus {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		bus, err := pubsub.NewRedisBus(ctx, rdb)
		if err != nil {
			log.Fatalf("failed to connect Redis: %v", err)
		}
		return bus
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect change feed: %v", err)
		}
		bus, err := pubsub.NewPostgresBus(ctx, pool)
		if err != nil {
			log.Fatalf("failed to connect change feed: %v", err)
		}
		return bus
	}
	return pubsub.NewMemoryBus()
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Error encoding output: %v", err)
	}
	fmt.Println(string(out))
}
