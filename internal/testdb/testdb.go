// Package testdb opens throwaway sqlite databases carrying the money tables
// for repository and service tests.
package testdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  total_amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  confirmed_at DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  provider TEXT,
  status TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  external_reference TEXT UNIQUE,
  phone_number TEXT,
  error_message TEXT,
  simulated INTEGER NOT NULL DEFAULT 0,
  refund_reference TEXT,
  refund_reason TEXT,
  paid_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS escrow_accounts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  payment_reference TEXT,
  funded_at DATETIME,
  disputed_at DATETIME,
  resolved_at DATETIME,
  released_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS escrow_transactions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  reference TEXT,
  notes TEXT,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS escrow_releases (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  requester_id TEXT NOT NULL,
  approver_id TEXT,
  amount NUMERIC NOT NULL,
  status TEXT NOT NULL,
  reason TEXT,
  rejection_reason TEXT,
  requested_at DATETIME NOT NULL,
  approved_at DATETIME,
  rejected_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS disputes (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  opened_by TEXT NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL,
  decision TEXT,
  resolved_by TEXT,
  resolution_notes TEXT,
  opened_at DATETIME NOT NULL,
  resolved_at DATETIME
);
CREATE TABLE IF NOT EXISTS vendor_wallets (
  vendor_id TEXT PRIMARY KEY,
  available_balance NUMERIC NOT NULL DEFAULT 0,
  pending_balance NUMERIC NOT NULL DEFAULT 0,
  total_earned NUMERIC NOT NULL DEFAULT 0,
  total_withdrawn NUMERIC NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'TZS',
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (available_balance >= 0),
  CHECK (pending_balance >= 0),
  CHECK (available_balance + pending_balance <= total_earned)
);
CREATE TABLE IF NOT EXISTS payouts (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  payout_method_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  payout_reference TEXT NOT NULL UNIQUE,
  notes TEXT,
  failure_reason TEXT,
  processed_by TEXT,
  requested_at DATETIME NOT NULL,
  processing_at DATETIME,
  completed_at DATETIME,
  failed_at DATETIME,
  cancelled_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  payout_id TEXT,
  order_id TEXT,
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_wallet_transactions_order_credit ON wallet_transactions (order_id) WHERE type = 'credit';
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  event_id TEXT NOT NULL,
  sms_sid TEXT,
  sms_status TEXT,
  read_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_notifications_event_recipient ON notifications (event_id, recipient_id);
`

// Open returns a private in-memory database with every money table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	require.NoError(t, db.Exec(schema).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// TxRunner satisfies the services' transaction runner with gorm's Transaction.
type TxRunner struct {
	DB *gorm.DB
}

// WithTx runs fn inside a transaction that rolls back on error.
func (r TxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}

// Outbox returns the real outbox service writing into db.
func Outbox(db *gorm.DB) *outbox.Service {
	return outbox.NewService(outbox.NewRepository(db), nil)
}

// EventTypes lists committed outbox events in insertion order.
func EventTypes(t *testing.T, db *gorm.DB) []enums.OutboxEventType {
	t.Helper()

	var rows []models.OutboxEvent
	require.NoError(t, db.Order("created_at ASC").Find(&rows).Error)
	types := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

// CountEvents counts committed outbox events of the given type.
func CountEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}
