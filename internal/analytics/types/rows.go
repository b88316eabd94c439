package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SettlementEventRow mirrors the settlement_events BigQuery schema. Amounts are
// minor units of Currency.
type SettlementEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	AggregateType string             `bigquery:"aggregate_type"`
	AggregateID   string             `bigquery:"aggregate_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       *string            `bigquery:"order_id"`
	BuyerID       *string            `bigquery:"buyer_id"`
	VendorID      *string            `bigquery:"vendor_id"`
	Status        string             `bigquery:"status"`
	AmountMinor   int64              `bigquery:"amount_minor"`
	Currency      string             `bigquery:"currency"`
	Method        *string            `bigquery:"payment_method"`
	Reference     *string            `bigquery:"reference"`
	Simulated     bool               `bigquery:"simulated"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
