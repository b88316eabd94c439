package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
)

const moneyNotificationConsumer = "money-notifications"

type consumerRepository interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
	AttachSMS(ctx context.Context, id uuid.UUID, sid string, status enums.SMSDeliveryStatus) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Dispatcher delivers a notice outside the app. It returns the provider message id.
type Dispatcher interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Consumer turns money events into buyer and vendor notifications.
type Consumer struct {
	repo         consumerRepository
	subscription *pubsub.Subscriber
	idempotency  idempotencyChecker
	dispatcher   Dispatcher
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer. dispatcher may be nil, in
// which case notifications stay in-app only.
func NewConsumer(repo consumerRepository, subscription *pubsub.Subscriber, manager idempotencyChecker, dispatcher Dispatcher, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		dispatcher:   dispatcher,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

type notice struct {
	recipient uuid.UUID
	kind      enums.NotificationType
	title     string
	message   string
	phone     *string
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !eventType.IsValid() {
		c.logg.Warn(logCtx, "skipping unknown event type")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	notices, err := buildNotices(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}
	if len(notices) == 0 {
		return processResult{ack: true}
	}

	claimed, err := c.idempotency.Claim(ctx, moneyNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	for _, n := range notices {
		if err := c.deliver(ctx, logCtx, eventID, n); err != nil {
			c.logg.Error(logCtx, "notification handling failed", err)
			_ = c.idempotency.Release(ctx, moneyNotificationConsumer, eventID)
			return processResult{nack: true}
		}
	}
	return processResult{ack: true}
}

func (c *Consumer) deliver(ctx, logCtx context.Context, eventID uuid.UUID, n notice) error {
	notification := &models.Notification{
		RecipientID: n.recipient,
		Type:        n.kind,
		Title:       n.title,
		Message:     n.message,
		EventID:     eventID,
	}
	created, err := c.repo.Create(ctx, notification)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	c.logg.Info(c.logg.WithField(logCtx, "recipient_id", n.recipient.String()), "notification created")

	if n.phone == nil || *n.phone == "" || c.dispatcher == nil {
		return nil
	}
	smsCtx := c.logg.WithField(logCtx, "to", logger.RedactPhone(*n.phone))
	sid, err := c.dispatcher.Send(ctx, *n.phone, n.message)
	if err != nil {
		c.logg.Warn(c.logg.WithField(smsCtx, "error", err.Error()), "sms dispatch failed")
		return nil
	}
	if err := c.repo.AttachSMS(ctx, notification.ID, sid, enums.SMSDeliveryQueued); err != nil {
		c.logg.Warn(c.logg.WithField(smsCtx, "error", err.Error()), "failed to record sms sid")
	}
	return nil
}

// buildNotices maps an event to the notifications it produces. Events nobody
// needs to hear about yield none.
func buildNotices(eventType enums.OutboxEventType, data json.RawMessage) ([]notice, error) {
	switch eventType {
	case enums.EventPaymentCompleted, enums.EventPaymentFailed, enums.EventPaymentRefunded:
		var p payloads.PaymentStatusEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return paymentNotices(eventType, p), nil
	case enums.EventEscrowFunded, enums.EventEscrowReleased, enums.EventEscrowRefunded, enums.EventEscrowDisputed:
		var p payloads.EscrowEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return escrowNotices(eventType, p), nil
	case enums.EventDisputeResolved:
		var p payloads.DisputeResolvedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("The dispute on order %s was resolved with a %s of %s.", p.OrderID, p.Decision, formatAmount(p.Amount, p.Currency))
		return []notice{
			{recipient: p.BuyerID, kind: enums.NotificationTypeDispute, title: "Dispute resolved", message: msg},
			{recipient: p.VendorID, kind: enums.NotificationTypeDispute, title: "Dispute resolved", message: msg},
		}, nil
	case enums.EventWalletCredited:
		var p payloads.WalletCreditedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []notice{{
			recipient: p.VendorID,
			kind:      enums.NotificationTypePayout,
			title:     "Earnings credited",
			message:   fmt.Sprintf("%s was added to your wallet. Available balance: %s.", formatAmount(p.Amount, p.Currency), formatAmount(p.AvailableBalance, p.Currency)),
		}}, nil
	case enums.EventPayoutCompleted, enums.EventPayoutFailed, enums.EventPayoutCancelled:
		var p payloads.PayoutEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return payoutNotices(eventType, p), nil
	default:
		return nil, nil
	}
}

func paymentNotices(eventType enums.OutboxEventType, p payloads.PaymentStatusEvent) []notice {
	amount := formatAmount(p.Amount, p.Currency)
	n := notice{recipient: p.BuyerID, kind: enums.NotificationTypePayment, phone: p.PhoneNumber}
	switch eventType {
	case enums.EventPaymentCompleted:
		n.title = "Payment received"
		n.message = fmt.Sprintf("Your payment of %s for order %s was received.", amount, p.OrderID)
	case enums.EventPaymentFailed:
		n.title = "Payment failed"
		n.message = fmt.Sprintf("Your payment of %s for order %s did not go through.", amount, p.OrderID)
		if p.ErrorMessage != nil && *p.ErrorMessage != "" {
			n.message = fmt.Sprintf("%s Reason: %s", n.message, *p.ErrorMessage)
		}
	case enums.EventPaymentRefunded:
		n.title = "Payment refunded"
		n.message = fmt.Sprintf("Your payment of %s for order %s was refunded.", amount, p.OrderID)
	}
	if p.Simulated {
		n.phone = nil
	}
	return []notice{n}
}

func escrowNotices(eventType enums.OutboxEventType, p payloads.EscrowEvent) []notice {
	amount := formatAmount(p.Amount, p.Currency)
	switch eventType {
	case enums.EventEscrowFunded:
		return []notice{{
			recipient: p.VendorID,
			kind:      enums.NotificationTypeEscrow,
			title:     "Order paid",
			message:   fmt.Sprintf("%s for order %s is held in escrow until delivery is confirmed.", amount, p.OrderID),
		}}
	case enums.EventEscrowReleased:
		return []notice{{
			recipient: p.VendorID,
			kind:      enums.NotificationTypeEscrow,
			title:     "Escrow released",
			message:   fmt.Sprintf("%s held for order %s was released to you.", amount, p.OrderID),
		}}
	case enums.EventEscrowRefunded:
		return []notice{{
			recipient: p.BuyerID,
			kind:      enums.NotificationTypeEscrow,
			title:     "Escrow refunded",
			message:   fmt.Sprintf("%s held for order %s was returned to you.", amount, p.OrderID),
		}}
	case enums.EventEscrowDisputed:
		msg := fmt.Sprintf("A dispute was opened on order %s. The %s in escrow stays on hold until it is resolved.", p.OrderID, amount)
		return []notice{
			{recipient: p.BuyerID, kind: enums.NotificationTypeDispute, title: "Dispute opened", message: msg},
			{recipient: p.VendorID, kind: enums.NotificationTypeDispute, title: "Dispute opened", message: msg},
		}
	}
	return nil
}

func payoutNotices(eventType enums.OutboxEventType, p payloads.PayoutEvent) []notice {
	amount := formatAmount(p.Amount, p.Currency)
	n := notice{recipient: p.VendorID, kind: enums.NotificationTypePayout}
	switch eventType {
	case enums.EventPayoutCompleted:
		n.title = "Payout sent"
		n.message = fmt.Sprintf("Payout %s of %s was sent.", p.PayoutReference, amount)
	case enums.EventPayoutFailed:
		n.title = "Payout failed"
		n.message = fmt.Sprintf("Payout %s of %s failed and the funds are back in your wallet.", p.PayoutReference, amount)
		if p.FailureReason != nil && *p.FailureReason != "" {
			n.message = fmt.Sprintf("%s Reason: %s", n.message, *p.FailureReason)
		}
	case enums.EventPayoutCancelled:
		n.title = "Payout cancelled"
		n.message = fmt.Sprintf("Payout %s of %s was cancelled.", p.PayoutReference, amount)
	}
	return []notice{n}
}

func formatAmount(amount decimal.Decimal, currency enums.Currency) string {
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}
