package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

type catalogEntry struct {
	aggregate enums.OutboxAggregateType
	payload   func() any
	events    []enums.OutboxEventType
}

// catalog lists every money event the publisher accepts, grouped by the
// aggregate whose history it belongs to.
var catalog = []catalogEntry{
	{
		aggregate: enums.AggregatePayment,
		payload:   func() any { return &payloads.PaymentStatusEvent{} },
		events:    []enums.OutboxEventType{enums.EventPaymentProcessing, enums.EventPaymentCompleted, enums.EventPaymentFailed, enums.EventPaymentRefunded},
	},
	{
		aggregate: enums.AggregateEscrowAccount,
		payload:   func() any { return &payloads.EscrowEvent{} },
		events:    []enums.OutboxEventType{enums.EventEscrowFunded, enums.EventEscrowReleased, enums.EventEscrowRefunded, enums.EventEscrowDisputed},
	},
	{
		aggregate: enums.AggregateEscrowAccount,
		payload:   func() any { return &payloads.DisputeResolvedEvent{} },
		events:    []enums.OutboxEventType{enums.EventDisputeResolved},
	},
	{
		aggregate: enums.AggregateOrder,
		payload:   func() any { return &payloads.OrderStatusEvent{} },
		events:    []enums.OutboxEventType{enums.EventOrderConfirmed, enums.EventOrderCompleted},
	},
	{
		aggregate: enums.AggregateVendorWallet,
		payload:   func() any { return &payloads.WalletCreditedEvent{} },
		events:    []enums.OutboxEventType{enums.EventWalletCredited},
	},
	{
		aggregate: enums.AggregatePayout,
		payload:   func() any { return &payloads.PayoutEvent{} },
		events:    []enums.OutboxEventType{enums.EventPayoutRequested, enums.EventPayoutProcessing, enums.EventPayoutCompleted, enums.EventPayoutFailed, enums.EventPayoutCancelled},
	},
}

// NewEventRegistry builds the registry. Every money event goes to the single
// money-events topic; consumers fan out through their own subscriptions.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.MoneyEventsTopic)
	if topic == "" {
		return nil, fmt.Errorf("money events topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, entry := range catalog {
		for _, eventType := range entry.events {
			reg.register(EventDescriptor{
				EventType:      eventType,
				AggregateType:  entry.aggregate,
				Topic:          topic,
				PayloadFactory: entry.payload,
			})
		}
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version > outbox.CurrentVersion {
		return nil, NewNonRetryableError(fmt.Errorf("envelope version %d is newer than %d", envelope.Version, outbox.CurrentVersion))
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, NewNonRetryableError(fmt.Errorf("envelope says %s, row says %s", envelope.EventType, event.EventType))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// EventFromMessage rebuilds the outbox row shape from a published Pub/Sub
// message so consumers can reuse Resolve.
func EventFromMessage(attributes map[string]string, data []byte) (models.OutboxEvent, error) {
	eventType, err := enums.ParseOutboxEventType(attributes["event_type"])
	if err != nil {
		return models.OutboxEvent{}, NewNonRetryableError(err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attributes["aggregate_type"])
	if err != nil {
		return models.OutboxEvent{}, NewNonRetryableError(err)
	}
	aggregateID, err := uuid.Parse(attributes["aggregate_id"])
	if err != nil {
		return models.OutboxEvent{}, NewNonRetryableError(fmt.Errorf("parse aggregate_id: %w", err))
	}
	return models.OutboxEvent{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
