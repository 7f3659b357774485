// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig holds connection pool and session settings.
type PoolConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// Session defaults for statements run outside a transaction, such as
	// ledger reads and the rule cache listener. Zero leaves the server value.
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

// DefaultPoolConfig returns the settings used when nothing is configured.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:              dsn,
		ApplicationName:  "docflow",
		MaxConns:         25,
		MinConns:         5,
		MaxConnLifetime:  time.Hour,
		MaxConnIdleTime:  30 * time.Minute,
		StatementTimeout: 30 * time.Second,
		LockTimeout:      5 * time.Second,
	}
}

// sessionSettings lists the set_config calls run on every new connection.
func (c PoolConfig) sessionSettings() [][2]string {
	name := c.ApplicationName
	if name == "" {
		name = "docflow"
	}
	settings := [][2]string{{"application_name", name}}
	if c.StatementTimeout > 0 {
		settings = append(settings, [2]string{"statement_timeout", fmt.Sprintf("%dms", c.StatementTimeout.Milliseconds())})
	}
	if c.LockTimeout > 0 {
		settings = append(settings, [2]string{"lock_timeout", fmt.Sprintf("%dms", c.LockTimeout.Milliseconds())})
	}
	return settings
}

// Pool is the pgx pool behind every repository.
type Pool struct {
	*pgxpool.Pool
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// Unwrap returns the pgx pool, for LISTEN connections.
func (p *Pool) Unwrap() *pgxpool.Pool {
	return p.Pool
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime

	settings := cfg.sessionSettings()
	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for _, kv := range settings {
			if _, err := conn.Exec(ctx, "SELECT set_config($1, $2, false)", kv[0], kv[1]); err != nil {
				return fmt.Errorf("set %s: %w", kv[0], err)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{Pool: pool}, nil
}
