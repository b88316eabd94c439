package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

var ErrEmptyPayload = errors.New("empty payload")

// Envelope is one money event after Pub/Sub decoding: routing fields from the
// message attributes, Payload from the stored outbox envelope's data.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// DecodePayload unmarshals the event data into dest.
func (e Envelope) DecodePayload(dest any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: %w", e.EventType, ErrEmptyPayload)
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// Row starts a settlement row carrying the envelope's identity columns.
func (e Envelope) Row() SettlementEventRow {
	return SettlementEventRow{
		EventID:       e.EventID,
		EventType:     string(e.EventType),
		AggregateType: string(e.AggregateType),
		AggregateID:   e.AggregateID,
		OccurredAt:    e.OccurredAt,
	}
}
