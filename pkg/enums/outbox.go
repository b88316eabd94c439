package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayment       OutboxAggregateType = "payment"
	AggregateEscrowAccount OutboxAggregateType = "escrow_account"
	AggregatePayout        OutboxAggregateType = "payout"
	AggregateVendorWallet  OutboxAggregateType = "vendor_wallet"
	AggregateOrder         OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateEscrowAccount,
	AggregatePayout,
	AggregateVendorWallet,
	AggregateOrder,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentProcessing OutboxEventType = "payment_processing"
	EventPaymentCompleted  OutboxEventType = "payment_completed"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventPaymentRefunded   OutboxEventType = "payment_refunded"
	EventEscrowFunded      OutboxEventType = "escrow_funded"
	EventEscrowReleased    OutboxEventType = "escrow_released"
	EventEscrowRefunded    OutboxEventType = "escrow_refunded"
	EventEscrowDisputed    OutboxEventType = "escrow_disputed"
	EventDisputeResolved   OutboxEventType = "dispute_resolved"
	EventOrderConfirmed    OutboxEventType = "order_confirmed"
	EventOrderCompleted    OutboxEventType = "order_completed"
	EventWalletCredited    OutboxEventType = "wallet_credited"
	EventPayoutRequested   OutboxEventType = "payout_requested"
	EventPayoutProcessing  OutboxEventType = "payout_processing"
	EventPayoutCompleted   OutboxEventType = "payout_completed"
	EventPayoutFailed      OutboxEventType = "payout_failed"
	EventPayoutCancelled   OutboxEventType = "payout_cancelled"
)

var validEventTypes = []OutboxEventType{
	EventPaymentProcessing,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventEscrowFunded,
	EventEscrowReleased,
	EventEscrowRefunded,
	EventEscrowDisputed,
	EventDisputeResolved,
	EventOrderConfirmed,
	EventOrderCompleted,
	EventWalletCredited,
	EventPayoutRequested,
	EventPayoutProcessing,
	EventPayoutCompleted,
	EventPayoutFailed,
	EventPayoutCancelled,
}

// OutboxEventTypes returns every event type in the event_type_enum.
func OutboxEventTypes() []OutboxEventType {
	return slices.Clone(validEventTypes)
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
