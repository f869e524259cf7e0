package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Migrations are written for Postgres. Tests build their schema with
// AutoMigrate on sqlite instead of running goose.
const dialect = "postgres"

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes a goose command (up, down, status, ...) against db.
func Run(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at target.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (want YYYYMMDDHHMMSS): %w", target, err)
	}
	if err := prepare(db, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current < version:
		err = goose.UpToContext(ctx, db, dir, version)
	case current > version:
		err = goose.DownToContext(ctx, db, dir, version)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return nil
}
