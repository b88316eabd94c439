package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/escrowpay-backend/internal/analytics/types"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertSettlement(ctx context.Context, row types.SettlementEventRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

type handlerEntry struct {
	factory func() any
	handler Handler
}

// Router dispatches analytics envelopes to the configured handler per event type.
type Router struct {
	handlers map[enums.OutboxEventType]handlerEntry
	logg     *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	payment := handlerEntry{
		factory: func() any { return &payloads.PaymentStatusEvent{} },
		handler: newPaymentHandler(writer, logg),
	}
	escrow := handlerEntry{
		factory: func() any { return &payloads.EscrowEvent{} },
		handler: newEscrowHandler(writer, logg),
	}
	order := handlerEntry{
		factory: func() any { return &payloads.OrderStatusEvent{} },
		handler: newOrderHandler(writer, logg),
	}
	payout := handlerEntry{
		factory: func() any { return &payloads.PayoutEvent{} },
		handler: newPayoutHandler(writer, logg),
	}

	entries := map[enums.OutboxEventType]handlerEntry{
		enums.EventPaymentProcessing: payment,
		enums.EventPaymentCompleted:  payment,
		enums.EventPaymentFailed:     payment,
		enums.EventPaymentRefunded:   payment,
		enums.EventEscrowFunded:      escrow,
		enums.EventEscrowReleased:    escrow,
		enums.EventEscrowRefunded:    escrow,
		enums.EventEscrowDisputed:    escrow,
		enums.EventDisputeResolved: {
			factory: func() any { return &payloads.DisputeResolvedEvent{} },
			handler: newDisputeHandler(writer, logg),
		},
		enums.EventOrderConfirmed: order,
		enums.EventOrderCompleted: order,
		enums.EventWalletCredited: {
			factory: func() any { return &payloads.WalletCreditedEvent{} },
			handler: newWalletHandler(writer, logg),
		},
		enums.EventPayoutRequested:  payout,
		enums.EventPayoutProcessing: payout,
		enums.EventPayoutCompleted:  payout,
		enums.EventPayoutFailed:     payout,
		enums.EventPayoutCancelled:  payout,
	}

	for event, custom := range overrides {
		entry, ok := entries[event]
		if !ok || custom == nil {
			continue
		}
		entry.handler = custom
		entries[event] = entry
	}

	return &Router{
		handlers: entries,
		logg:     logg,
	}, nil
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload := entry.factory()
	if err := envelope.DecodePayload(payload); err != nil {
		return err
	}

	return entry.handler.Handle(ctx, envelope, payload)
}
