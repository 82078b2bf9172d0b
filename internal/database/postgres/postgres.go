// Package postgres stores enrollment records in PostgreSQL with pgvector.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/database"
	_ "github.com/lib/pq"
)

const (
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 10 * time.Second
)

// snapshotOptions gives every read a consistent view of the tables.
var snapshotOptions = &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}

// Pool owns the connection pool of one Store. Connection and transaction
// failures wrap database.ErrStorageUnavailable.
type Pool struct {
	db *sql.DB
}

// NewPool opens and pings the database at cfg.URL.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: database URL is required", database.ErrStorageUnavailable)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", database.ErrStorageUnavailable, redactURL(cfg.URL), err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", database.ErrStorageUnavailable, redactURL(cfg.URL), err)
	}

	return &Pool{db: db}, nil
}

// redactURL hides the password of a connection URL for error messages.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "postgres"
	}
	return u.Redacted()
}

// DB returns the underlying sql.DB for single-statement queries.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("close postgres pool: %w", err)
	}
	return nil
}

// BeginTx starts a read-write transaction.
func (p *Pool) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return p.begin(ctx, nil)
}

// BeginSnapshot starts a read-only repeatable-read transaction.
func (p *Pool) BeginSnapshot(ctx context.Context) (*sql.Tx, error) {
	return p.begin(ctx, snapshotOptions)
}

func (p *Pool) begin(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", database.ErrStorageUnavailable, err)
	}
	return tx, nil
}
