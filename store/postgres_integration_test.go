//go:build integration

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LovationAdmin/finance-api/config"
)

// setupPostgres starts a disposable PostgreSQL container with the schema
// applied. Each subtest truncates the tables before running.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("finance"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := config.InitDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, config.RunMigrations(ctx, db))
	// Running twice proves the migrations are idempotent.
	require.NoError(t, config.RunMigrations(ctx, db))
	return db
}

func TestIntegration_PostgresStore(t *testing.T) {
	db := setupPostgres(t)

	runStoreContract(t, func(t *testing.T) Store {
		_, err := db.Exec(`TRUNCATE transactions, accounts, provider_items, loans, subscriptions, budgets, goals`)
		require.NoError(t, err)
		return NewPostgres(db)
	})
}
