package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/postmaster/postmaster-backend/internal/config"
	"github.com/postmaster/postmaster-backend/migrations"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		log.Fatal("Usage: migrate COMMAND\n\nCommands:\n  up\n  down\n  status")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.PostgresDSN == "" {
		log.Fatal("PM_POSTGRES_DSN is required")
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	command := args[0]
	switch command {
	case "up":
		if err := migrations.Up(ctx, db); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
	case "down":
		if err := migrations.Down(ctx, db); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
	case "status":
		if err := migrations.Status(ctx, db); err != nil {
			log.Fatalf("Migration status failed: %v", err)
		}
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
