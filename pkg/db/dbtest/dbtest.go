// Package dbtest opens throwaway in-memory stores for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors internal/migration/migrations with SQLite column types.
var Schema = []string{
	`CREATE TABLE partners (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		commission_percent TEXT NOT NULL DEFAULT '0',
		discount_percent TEXT NOT NULL DEFAULT '0',
		free_shipping BOOLEAN NOT NULL DEFAULT 0,
		payout_details TEXT,
		notify_email BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_partners_email ON partners(email)`,
	`CREATE TABLE customers (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT,
		shipping_address TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE referral_codes (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL,
		partner_id BIGINT NOT NULL,
		batch_id BIGINT,
		discount_percent TEXT NOT NULL DEFAULT '0',
		commission_percent TEXT NOT NULL DEFAULT '0',
		free_shipping BOOLEAN NOT NULL DEFAULT 0,
		is_used BOOLEAN NOT NULL DEFAULT 0,
		order_id BIGINT,
		used_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_referral_codes_code ON referral_codes(code)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		order_number TEXT NOT NULL,
		customer_id BIGINT,
		memorial_id BIGINT,
		referral_code_id BIGINT,
		product_type TEXT NOT NULL,
		hosting_duration TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		subtotal_amount BIGINT NOT NULL,
		discount_amount BIGINT NOT NULL DEFAULT 0,
		shipping_amount BIGINT NOT NULL DEFAULT 0,
		total_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_reference TEXT,
		tracking_number TEXT,
		carrier TEXT,
		paid_at DATETIME,
		shipped_at DATETIME,
		completed_at DATETIME,
		cancelled_at DATETIME,
		processing_note TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_orders_order_number ON orders(order_number)`,
	`CREATE TABLE supplier_orders (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		order_number TEXT NOT NULL,
		product_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_supplier_orders_order ON supplier_orders(order_id)`,
	`CREATE TABLE payouts (
		id BIGINT PRIMARY KEY,
		payout_number TEXT NOT NULL,
		partner_id BIGINT NOT NULL,
		total_amount BIGINT NOT NULL,
		commission_count INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment_reference TEXT,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'completed',
		created_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payouts_number ON payouts(payout_number)`,
	`CREATE TABLE commissions (
		id BIGINT PRIMARY KEY,
		partner_id BIGINT NOT NULL,
		order_id BIGINT NOT NULL,
		referral_code_id BIGINT NOT NULL,
		order_total_before_discount BIGINT NOT NULL,
		discount_amount BIGINT NOT NULL,
		commission_percent TEXT NOT NULL,
		commission_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		earned_at DATETIME NOT NULL,
		approved_at DATETIME,
		paid_at DATETIME,
		cancelled_at DATETIME,
		payout_id BIGINT,
		payout_reference TEXT,
		notes TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_commissions_order_referral ON commissions(order_id, referral_code_id)`,
	`CREATE TABLE code_batches (
		id BIGINT PRIMARY KEY,
		partner_id BIGINT NOT NULL,
		quantity INTEGER NOT NULL,
		product_type TEXT NOT NULL,
		hosting_duration TEXT NOT NULL,
		unit_amount BIGINT NOT NULL,
		total_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'requested',
		payment_reference TEXT,
		error_note TEXT,
		requested_at DATETIME NOT NULL,
		approved_at DATETIME,
		generated_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE activation_codes (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL,
		batch_id BIGINT NOT NULL,
		partner_id BIGINT NOT NULL,
		product_type TEXT NOT NULL,
		hosting_duration TEXT NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT 0,
		used_at DATETIME,
		memorial_id BIGINT,
		expires_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_activation_codes_code ON activation_codes(code)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		processing_error TEXT
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
	`CREATE TABLE notification_outbox (
		id BIGINT PRIMARY KEY,
		kind TEXT NOT NULL,
		recipient TEXT NOT NULL,
		dedupe_key TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		sent_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_notification_outbox_dedupe ON notification_outbox(dedupe_key)`,
	`CREATE TABLE ledger_accounts (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_accounts_code ON ledger_accounts(code)`,
	`CREATE TABLE ledger_entries (
		id BIGINT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_id BIGINT NOT NULL,
		currency TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_source ON ledger_entries(source_type, source_id)`,
	`CREATE TABLE ledger_entry_lines (
		id BIGINT PRIMARY KEY,
		ledger_entry_id BIGINT NOT NULL,
		account_id BIGINT NOT NULL,
		direction TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount BIGINT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh in-memory store with the full schema applied.
// The pool is pinned to one connection so concurrent tests serialize on
// the database the way row locks would in production.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake node for test id generation.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
