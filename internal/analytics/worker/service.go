package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/escrowpay-backend/internal/analytics/router"
	"github.com/angelmondragon/escrowpay-backend/internal/analytics/types"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/registry"
)

const consumerName = "settlement-analytics"

// Handler records one decoded money event.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

// Handle calls fn.
func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// verdict is what happens to a message after processing.
type verdict int

const (
	ack verdict = iota
	nack
)

// Service feeds the analytics subscription into the settlement writer. Each
// event is claimed in Redis before it is handled and released again when the
// handler fails, so a redelivery can retry it.
type Service struct {
	subscription receiver
	handler      Handler
	claims       idempotencyChecker
	logg         *logger.Logger
}

// NewService builds the analytics consumer.
func NewService(subscription *gcppubsub.Subscriber, handler Handler, claims idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, claims: claims, logg: logg}, nil
}

// Run receives until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	logCtx := s.logg.WithFields(ctx, messageFields(msg))

	envelope, err := decode(msg)
	if err != nil {
		// redelivering a malformed message cannot fix it
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping undecodable analytics message")
		return ack
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "dropping analytics message with non-uuid event id")
		return ack
	}

	claimed, err := s.claims.Claim(logCtx, consumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "analytics idempotency check failed", err)
		return nack
	}
	if !claimed {
		s.logg.Info(logCtx, "analytics event already recorded")
		return ack
	}

	err = s.handler.Handle(logCtx, envelope)
	switch {
	case err == nil:
		s.logg.Info(logCtx, "analytics event recorded")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Info(logCtx, "event type not tracked by analytics")
		return ack
	default:
		s.logg.Error(logCtx, "analytics handler failed", err)
		if relErr := s.claims.Release(logCtx, consumerName, eventID); relErr != nil {
			s.logg.Error(logCtx, "failed to release analytics claim", relErr)
		}
		return nack
	}
}

func messageFields(msg *gcppubsub.Message) map[string]any {
	fields := map[string]any{"message_id": msg.ID}
	if msg.DeliveryAttempt != nil {
		fields["delivery_attempt"] = *msg.DeliveryAttempt
	}
	return fields
}

// decode turns a published outbox message back into an Envelope. Attributes
// carry the routing data; the body carries the stored payload envelope.
func decode(msg *gcppubsub.Message) (types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attrs := make(map[string]string, len(msg.Attributes))
	for k, v := range msg.Attributes {
		attrs[k] = strings.TrimSpace(v)
	}
	row, err := registry.EventFromMessage(attrs, msg.Data)
	if err != nil {
		return types.Envelope{}, err
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attrs["event_id"]
	}
	if eventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attrs["occurred_at"]); err == nil {
			occurredAt = parsed
		}
	}

	return types.Envelope{
		EventID:       eventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID.String(),
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
