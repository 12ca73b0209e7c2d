package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations brings the cache schema up to date. The migrations ship
// embedded in the binary: a fresh database gets the full schema, an
// existing one only the pending steps.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// goose expects the .sql files at the root of the filesystem.
	src, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cache: migration filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, src)
	if err != nil {
		return fmt.Errorf("cache: migration provider: %w", err)
	}

	applied, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("cache: migrating schema: %w", err)
	}

	for _, res := range applied {
		logger.Debug("schema migration applied",
			slog.String("source", res.Source.Path),
			slog.Duration("took", res.Duration))
	}

	if len(applied) > 0 {
		logger.Info("cache schema migrated", slog.Int("steps", len(applied)))
	}

	return nil
}
