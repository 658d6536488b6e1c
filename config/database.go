package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

func InitDB(ctx context.Context, dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrations is the ordered schema. Every statement is idempotent so the
// whole list runs on each start.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		provider VARCHAR(20) NOT NULL DEFAULT 'manual',
		external_item_id TEXT,
		name VARCHAR(255) NOT NULL,
		currency CHAR(3) NOT NULL DEFAULT 'BRL',
		balance NUMERIC NOT NULL DEFAULT 0,
		mask VARCHAR(32),
		raw_payload TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Deleting an account orphans its transactions rather than removing them.
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		account_id TEXT REFERENCES accounts(id) ON DELETE SET NULL,
		description TEXT NOT NULL,
		category VARCHAR(255),
		currency CHAR(3) NOT NULL,
		amount NUMERIC NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		raw_payload TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS provider_items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		provider VARCHAR(20) NOT NULL,
		last_synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name VARCHAR(255) NOT NULL,
		lender VARCHAR(255),
		amount NUMERIC NOT NULL,
		interest_rate NUMERIC,
		due_date TIMESTAMPTZ,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at TIMESTAMPTZ,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name VARCHAR(255) NOT NULL,
		amount NUMERIC NOT NULL,
		billing_cycle VARCHAR(10) NOT NULL DEFAULT 'monthly',
		next_billing_date TIMESTAMPTZ,
		category VARCHAR(255),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS budgets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(255),
		amount NUMERIC NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name VARCHAR(255) NOT NULL,
		target_amount NUMERIC NOT NULL,
		current_amount NUMERIC NOT NULL DEFAULT 0,
		deadline TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_accounts_owner_created ON accounts(owner_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_owner_date ON transactions(owner_id, date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_items_owner ON provider_items(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_owner ON loans(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_owner ON subscriptions(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_budgets_owner ON budgets(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_goals_owner ON goals(owner_id)`,
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, migration := range Migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i, err)
		}
	}
	return nil
}
