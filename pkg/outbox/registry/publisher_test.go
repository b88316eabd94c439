package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	accountID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.EscrowEvent{
		AccountID: accountID,
		OrderID:   uuid.New(),
		Status:    enums.EscrowStatusFunded,
		Amount:    decimal.NewFromInt(100000),
		Currency:  enums.CurrencyTZS,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventEscrowFunded,
		AggregateType: enums.AggregateEscrowAccount,
		AggregateID:   accountID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "money-events" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	if resolved.Descriptor.EventType != enums.EventEscrowFunded {
		t.Fatalf("unexpected event type %s", resolved.Descriptor.EventType)
	}
	payload, ok := resolved.Payload.(*payloads.EscrowEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.AccountID != accountID || !payload.Amount.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range enums.OutboxEventTypes() {
		desc, ok := reg.entries[eventType]
		require.True(t, ok, "event %s not registered", eventType)
		assert.Equal(t, "money-events", desc.Topic)
		assert.NotNil(t, desc.PayloadFactory())
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{MoneyEventsTopic: "  "})
	assert.Error(t, err)
}

func TestEventFromMessage(t *testing.T) {
	aggregateID := uuid.New()
	event, err := EventFromMessage(map[string]string{
		"event_type":     string(enums.EventPayoutCompleted),
		"aggregate_type": string(enums.AggregatePayout),
		"aggregate_id":   aggregateID.String(),
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, aggregateID, event.AggregateID)
	assert.Equal(t, enums.EventPayoutCompleted, event.EventType)

	_, err = EventFromMessage(map[string]string{"event_type": "unknown"}, nil)
	var nonRetry NonRetryableError
	assert.ErrorAs(t, err, &nonRetry)
}

func TestEventRegistryRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	futureEnvelope := mustMarshal(t, outbox.PayloadEnvelope{Version: outbox.CurrentVersion + 1, EventID: uuid.NewString(), Data: json.RawMessage(`{}`)})
	mislabelled := mustMarshal(t, outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), EventType: enums.EventPaymentFailed, Data: json.RawMessage(`{}`)})

	tests := map[string]models.OutboxEvent{
		"unknown event": {
			EventType: "reservation_released", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
			Payload: mustEnvelope(t, []byte(`{"reason":"none"}`)),
		},
		"aggregate mismatch": {
			EventType: enums.EventPayoutRequested, AggregateType: enums.AggregateVendorWallet, AggregateID: uuid.New(),
			Payload: mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType: enums.EventPaymentCompleted, AggregateType: enums.AggregatePayment,
			Payload: mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType: enums.EventPaymentCompleted, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(),
			Payload: mustEnvelope(t, []byte("null")),
		},
		"newer envelope version": {
			EventType: enums.EventPaymentCompleted, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(),
			Payload: futureEnvelope,
		},
		"envelope type disagrees with row": {
			EventType: enums.EventPaymentCompleted, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(),
			Payload: mislabelled,
		},
		"garbage envelope": {
			EventType: enums.EventPaymentCompleted, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(),
			Payload: []byte(`not json`),
		},
	}
	for name, event := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			assert.ErrorAs(t, err, &nonRetry)
		})
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		MoneyEventsTopic:         "money-events",
		NotificationSubscription: "money-events-notifications",
		AnalyticsSubscription:    "money-events-analytics",
	}
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
