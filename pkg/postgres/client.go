// Package postgres wraps a lib/pq connection pool with transaction and schema
// helpers.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
)

// Client owns the connection pool.
type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens a pool sized from cfg and pings it once.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// InTx runs fn inside a transaction, committing on success and rolling back
// on error.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Migrate applies the given DDL statements in order inside one transaction.
// Statements must be idempotent (CREATE ... IF NOT EXISTS).
func (c *Client) Migrate(ctx context.Context, statements ...string) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration %d: %w", i, err)
			}
		}
		return nil
	})
}
