package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult resultado de una migración.
type MigrationResult struct {
	Version string `json:"version"`
	Applied bool   `json:"applied"`
}

// Migrate aplica en orden las migraciones embebidas que falten, cada una en su transacción.
// Una migración ya aplicada con checksum distinto es un error: los archivos no se reescriben.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]MigrationResult, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	results := make([]MigrationResult, 0, len(names))
	for _, name := range names {
		applied, err := applyMigration(ctx, pool, name)
		if err != nil {
			return results, err
		}
		results = append(results, MigrationResult{Version: name, Applied: applied})
	}
	return results, nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	body, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", name, err)
	}
	sum := sha256.Sum256(body)
	checksum := hex.EncodeToString(sum[:])

	var existing string
	err = pool.QueryRow(ctx, `SELECT checksum FROM schema_migrations WHERE version = $1`, name).Scan(&existing)
	switch {
	case err == nil:
		if existing != checksum {
			return false, fmt.Errorf("migration %s: checksum distinto al aplicado", name)
		}
		return false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("query schema_migrations: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`, name, checksum); err != nil {
		return false, fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}
