package core

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB opens the shared SQLite database backing SnapshotStore,
// VersionStore, and TombstoneStore for one daemon instance, applying
// pending migrations. Exported for the local control surface, which owns
// the database's lifetime (one file per data directory) and passes the
// same handle to every store it constructs.
func OpenDB(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	return openDB(ctx, path, logger)
}

// openDB opens the shared SQLite database backing SnapshotStore and
// VersionStore for one daemon instance, applies pending migrations, and
// configures it for the sole-writer pattern: one physical connection, so
// every write is serialized by the pool rather than by SQLite's own
// lock retries.
func openDB(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewSyncError(KindIO, "opening database "+path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return NewSyncError(KindIO, "loading embedded migrations", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return NewSyncError(KindIO, "creating migration provider", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return NewSyncError(KindIO, "running migrations", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
