//go:build integration

// Package pgtest starts a disposable PostgreSQL container with the docflow
// schema applied. Only integration tests import it.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"docflow/internal/infrastructure/storage/postgres"
)

// DB is a migrated database with a pool and transaction manager on top.
type DB struct {
	DSN  string
	Pool *postgres.Pool
	TxM  *postgres.TxManager
}

// New starts postgres:16-alpine, runs every up migration and returns a
// connected DB. The container is terminated when the test ends.
func New(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("docflow_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := postgres.NewMigrator(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	cfg := postgres.DefaultPoolConfig(dsn)
	cfg.MaxConns = 20
	pool, err := postgres.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &DB{
		DSN:  dsn,
		Pool: pool,
		TxM:  postgres.NewTxManager(pool, postgres.DefaultTxOptions()),
	}
}
