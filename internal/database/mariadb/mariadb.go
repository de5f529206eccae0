// Package mariadb reads finalized sales directly from the point-of-sale MariaDB.
package mariadb

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/m-mizutani/goerr/v2"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, goerr.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse MariaDB DSN")
	}
	// sale timestamps are scanned into time.Time
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create MariaDB connector")
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to ping MariaDB")
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
