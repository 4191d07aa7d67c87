// Package migrations embeds the SQL migrations and runs them with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

func setup() error {
	goose.SetBaseFS(FS)
	return goose.SetDialect("postgres")
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.DownContext(ctx, db, ".")
}

// Status prints the applied state of every migration.
func Status(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.StatusContext(ctx, db, ".")
}
