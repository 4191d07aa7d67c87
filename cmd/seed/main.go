// Command seed loads demo data for one user and prints a session token for
// calling the API as that user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/postmaster/postmaster-backend/internal/auth"
	"github.com/postmaster/postmaster-backend/internal/config"
	"github.com/postmaster/postmaster-backend/internal/db"
	"github.com/postmaster/postmaster-backend/internal/db/entities"
	"github.com/postmaster/postmaster-backend/internal/db/interfaces"
	plog "github.com/postmaster/postmaster-backend/internal/log"
	"github.com/postmaster/postmaster-backend/pkg/retry"
)

func main() {
	userID := flag.String("user", "", "owner id to seed (default: a new uuid)")
	email := flag.String("email", "demo@example.com", "email claim of the printed token")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the printed token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Type != db.TypePostgres {
		fmt.Println("PM_DB_TYPE is memory: the data below lives only as long as this process")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("PM_AUTH_JWT_SECRET is required to issue a token")
	}

	logger, err := plog.NewSugar(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	owner := *userID
	if owner == "" {
		owner = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	database, err := db.NewDatabase(&db.Config{Type: cfg.Database.Type, DSN: cfg.Database.PostgresDSN, Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	if err := db.ConnectAndMigrate(ctx, database, db.AllSchemas(), logger, retry.DefaultConfig()); err != nil {
		log.Fatalf("Failed to setup database: %v", err)
	}
	defer database.Disconnect(context.Background())

	fixtures := db.NewDemoFixtures(owner, time.Now())
	sets := []struct {
		schema *interfaces.Schema
		rows   []map[string]interface{}
	}{
		{entities.LinkedInAccountSchema, fixtures.Accounts},
		{entities.PostSchema, fixtures.Posts},
		{entities.PostAnalyticsSchema, fixtures.Analytics},
	}
	for _, set := range sets {
		if err := database.Seed(ctx, set.schema, set.rows); err != nil {
			log.Fatalf("Failed to seed %s: %v", set.schema.TableName, err)
		}
		fmt.Printf("Seeded %d %s\n", len(set.rows), set.schema.TableName)
	}

	token, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience, cfg.Auth.CookieName).Issue(owner, *email, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("\nUser:  %s\n", owner)
	fmt.Printf("Token: %s\n", token)
	fmt.Printf("\ncurl -H 'Authorization: Bearer %s' http://localhost%s/v1/dashboard\n", token, cfg.HTTPAddr)
}
