package postgres

import (
	"context"
	"embed"
	"sort"
	"strings"

	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// getAppliedMigrations returns a set of already-applied migration versions.
func (p *Pool) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, goerr.Wrap(err, "create migrations table")
	}

	applied := make(map[string]bool)
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, goerr.Wrap(err, "query applied migrations")
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, goerr.Wrap(err, "scan migration version")
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate applied migrations")
	}
	return applied, nil
}

// getPendingMigrationFiles returns sorted SQL migration filenames not yet applied.
func getPendingMigrationFiles(applied map[string]bool) ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, goerr.Wrap(err, "read migrations directory")
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies all pending migrations automatically on startup
func (p *Pool) Migrate(ctx context.Context) error {
	applied, err := p.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	files, err := getPendingMigrationFiles(applied)
	if err != nil {
		return err
	}

	for _, file := range files {
		content, err := migrationsFS.ReadFile("migrations/" + file)
		if err != nil {
			return goerr.Wrap(err, "read migration", goerr.V("file", file))
		}

		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return goerr.Wrap(err, "begin migration transaction", goerr.V("file", file))
		}

		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return goerr.Wrap(err, "execute migration", goerr.V("file", file))
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", file); err != nil {
			tx.Rollback()
			return goerr.Wrap(err, "record migration", goerr.V("file", file))
		}

		if err := tx.Commit(); err != nil {
			return goerr.Wrap(err, "commit migration", goerr.V("file", file))
		}

		logging.From(ctx).Info("applied migration", "file", file)
	}

	return nil
}

// MigrationsApplied returns the list of applied migrations
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, goerr.Wrap(err, "query applied migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, goerr.Wrap(err, "scan migration version")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate migration versions")
	}
	return versions, nil
}
