package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate runs a goose command ("up", "down", "status") against the pool.
func Migrate(ctx context.Context, db PgxIface, command string) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool())
	defer sqlDB.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	var err error
	switch command {
	case "up":
		err = goose.UpContext(ctx, sqlDB, "migrations")
	case "down":
		err = goose.DownContext(ctx, sqlDB, "migrations")
	case "status":
		err = goose.StatusContext(ctx, sqlDB, "migrations")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}

	return nil
}
