// Package testutil opens in-memory SQLite databases carrying the payoutd
// schema for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		account_type TEXT NOT NULL DEFAULT 'free' CHECK (account_type IN ('free', 'premium')),
		paystack_customer_code TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE ledgers (
		user_id INTEGER PRIMARY KEY,
		total_earnings INTEGER NOT NULL DEFAULT 0,
		withdrawn_earnings INTEGER NOT NULL DEFAULT 0,
		pending INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (total_earnings >= 0 AND withdrawn_earnings >= 0 AND pending >= 0),
		CHECK (total_earnings - withdrawn_earnings - pending >= 0)
	)`,
	`CREATE TABLE ledger_entries (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		entry_type TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_source ON ledger_entries (user_id, source_type, source_id, entry_type)`,
	`CREATE TABLE payout_accounts (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		account_number TEXT NOT NULL,
		bank_code TEXT NOT NULL,
		bank_name TEXT NOT NULL DEFAULT '',
		account_name TEXT NOT NULL DEFAULT '',
		recipient_code TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payout_accounts_user_number ON payout_accounts (user_id, account_number)`,
	`CREATE UNIQUE INDEX ux_payout_accounts_one_active ON payout_accounts (user_id) WHERE active`,
	`CREATE TABLE payouts (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		account_id INTEGER NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		amount INTEGER NOT NULL CHECK (amount > 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		transfer_code TEXT NOT NULL DEFAULT '',
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		settled_at DATETIME
	)`,
	`CREATE TABLE subscriptions (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		customer_code TEXT NOT NULL,
		subscription_code TEXT,
		plan_code TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		provider_status TEXT NOT NULL DEFAULT '',
		authorization_url TEXT NOT NULL DEFAULT '',
		access_reference TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		cancelled_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_code ON subscriptions (subscription_code) WHERE subscription_code IS NOT NULL`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		reference TEXT NOT NULL,
		line_no INTEGER NOT NULL,
		buyer_email TEXT NOT NULL,
		buyer_name TEXT NOT NULL DEFAULT '',
		seller_id INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		currency TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_orders_reference_line ON orders (reference, line_no)`,
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		seller_id INTEGER NOT NULL,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		first_order_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_customers_seller_email ON customers (seller_id, email)`,
	`CREATE TABLE webhook_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX ux_webhook_events_provider_event ON webhook_events (provider, provider_event_id)`,
	`CREATE TABLE alerts (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		dedup_key TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_alerts_dedup ON alerts (kind, dedup_key)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
}

// OpenDB returns an isolated in-memory database with every table created.
// A single connection keeps the shared-cache database alive and serializes
// writers the way row locks do in PostgreSQL.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:payoutd_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func Logger() *zap.Logger {
	return zap.NewNop()
}

// SeedUser inserts a free user and returns its id.
func SeedUser(t testing.TB, db *gorm.DB, node *snowflake.Node, email string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO users (id, email, name, account_type, created_at, updated_at) VALUES (?, ?, ?, 'free', ?, ?)`,
		id, email, email, now, now,
	).Error)
	return id
}
