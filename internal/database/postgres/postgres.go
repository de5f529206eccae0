package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/config"
	"github.com/kozaktomas/customer-recognition/internal/database"
	_ "github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, goerr.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database")
	}

	// Configure connection pool.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to ping database")
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return goerr.Wrap(err, "closing database connection")
		}
	}
	return nil
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "executing query")
	}
	return rows, nil
}

// BeginTx starts a transaction.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, goerr.Wrap(err, "beginning transaction")
	}
	return tx, nil
}

// Initialize connects, runs migrations and registers the customer store
// as the active storage backend.
func Initialize(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, goerr.New("database URL is required")
	}

	pool, err := NewPool(cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create PostgreSQL pool")
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to run migrations")
	}

	repo := NewCustomerRepository(pool)
	database.RegisterPostgresBackend(func() database.CustomerStore { return repo })
	return pool, nil
}
