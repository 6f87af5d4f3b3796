// Package postgres persists dashboard trade logs to Supabase via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client wraps a pgxpool.Pool.
type Client struct {
	pool *pgxpool.Pool
}

func NewClient(ctx context.Context, dsn string) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Client{pool: pool}, nil
}

func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

func (c *Client) Close() {
	c.pool.Close()
}

const tradeLogSchema = `
CREATE TABLE IF NOT EXISTS trade_logs (
	id         BIGSERIAL PRIMARY KEY,
	symbol     TEXT             NOT NULL,
	side       TEXT             NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	qty        DOUBLE PRECISION NOT NULL,
	pnl        DOUBLE PRECISION NOT NULL DEFAULT 0,
	note       TEXT             NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ      NOT NULL DEFAULT now()
)`

// EnsureSchema creates the trade_logs table when it does not exist yet.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, tradeLogSchema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
