package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/registry"
)

// batchStats summarise one processBatch call.
type batchStats struct {
	claimed   int
	published int
	retried   int
	dead      int
}

func (b batchStats) fields() map[string]any {
	return map[string]any{
		"claimed":   b.claimed,
		"published": b.published,
		"retried":   b.retried,
		"dead":      b.dead,
	}
}

// inflight is one row whose message has been handed to the broker.
type inflight struct {
	event  models.OutboxEvent
	topic  string
	result publishResult
	err    error
}

// processBatch claims rows, publishes them and records each outcome in the
// same transaction. Messages carry the aggregate ID as ordering key. After a
// failure Pub/Sub rejects the rest of that key, so those rows retry next
// batch; the key is resumed once the batch is recorded.
func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		stats.claimed = len(events)

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		sent := make([]inflight, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonUnresolvable, err); err != nil {
					return err
				}
				stats.dead++
				continue
			}
			sent = append(sent, s.send(publishCtx, event, resolved))
		}

		paused := map[string]string{}
		for _, item := range sent {
			err := item.wait(publishCtx)
			if err == nil {
				if err := s.repo.MarkPublishedTx(tx, item.event.ID); err != nil {
					return fmt.Errorf("mark published %s: %w", item.event.ID, err)
				}
				stats.published++
				continue
			}
			if item.topic != "" {
				paused[item.event.OrderingKey()] = item.topic
			}

			var nonRetryable registry.NonRetryableError
			switch {
			case errors.As(err, &nonRetryable):
				if err := s.deadLetter(ctx, tx, item.event, enums.OutboxDLQReasonNonRetryable, err); err != nil {
					return err
				}
				stats.dead++
			case item.event.AttemptCount+1 >= s.maxAttempts:
				if err := s.deadLetter(ctx, tx, item.event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err)); err != nil {
					return err
				}
				stats.dead++
			default:
				logCtx := s.logg.WithFields(ctx, eventFields(item.event, item.topic))
				logCtx = s.logg.WithField(logCtx, "error", err.Error())
				s.logg.Warn(logCtx, "outbox publish failed; will retry")
				if err := s.repo.MarkFailedTx(tx, item.event.ID, err); err != nil {
					return fmt.Errorf("mark failed %s: %w", item.event.ID, err)
				}
				stats.retried++
			}
		}

		for key, topic := range paused {
			s.broker.ResumePublish(topic, key)
		}
		return nil
	})
	return stats, err
}

func (s *Service) send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) inflight {
	topic := resolved.Descriptor.Topic
	pub := s.broker.Topic(topic)
	if pub == nil {
		return inflight{event: event, err: registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))}
	}
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.OrderingKey(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"outbox_id":      event.ID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
			"attempt":        fmt.Sprint(event.AttemptCount + 1),
		},
	}
	return inflight{event: event, topic: topic, result: pub.Publish(ctx, msg)}
}

func (i inflight) wait(ctx context.Context) error {
	if i.err != nil {
		return i.err
	}
	if i.result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %q returned no result", i.topic))
	}
	_, err := i.result.Get(ctx)
	return err
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := s.logg.WithFields(ctx, eventFields(event, ""))
	logCtx = s.logg.WithFields(logCtx, map[string]any{"error_reason": reason, "error": cause.Error()})
	s.logg.Warn(logCtx, "outbox event moved to dlq")

	if err := s.dlq.InsertTx(tx, event.DeadLetter(reason, cause, time.Now())); err != nil {
		return fmt.Errorf("insert dlq for %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func eventFields(event models.OutboxEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return fields
}
