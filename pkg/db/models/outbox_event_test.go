package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

func TestOrderingKeyScopesByAggregateType(t *testing.T) {
	id := uuid.New()
	account := OutboxEvent{AggregateType: enums.AggregateEscrowAccount, AggregateID: id}
	payout := OutboxEvent{AggregateType: enums.AggregatePayout, AggregateID: id}

	assert.Equal(t, "escrow_account:"+id.String(), account.OrderingKey())
	assert.NotEqual(t, account.OrderingKey(), payout.OrderingKey())
}

func TestDeadLetterCopiesRow(t *testing.T) {
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutRequested,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  4,
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("EAT", 3*3600))

	entry := event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, errors.New("broker down"), at)

	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, event.AggregateID, entry.AggregateID)
	assert.JSONEq(t, `{"version":1}`, string(entry.Payload))
	assert.Equal(t, 4, entry.AttemptCount)
	assert.Equal(t, time.UTC, entry.FailedAt.Location())
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "broker down", *entry.ErrorMessage)

	assert.Nil(t, event.DeadLetter(enums.OutboxDLQReasonUnresolvable, nil, at).ErrorMessage)
}
