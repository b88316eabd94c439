// Package squarewebhook applies Square card payment events to local payments.
package squarewebhook

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/escrowpay-backend/internal/payments"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

// PaymentUpdater applies a processor-reported status by processor reference.
type PaymentUpdater interface {
	UpdateStatusByReference(ctx context.Context, reference string, status enums.PaymentStatus, paidAt *time.Time) (*models.Payment, error)
}

type Service struct {
	payments PaymentUpdater
	logg     *logger.Logger
}

func NewService(updater PaymentUpdater, logg *logger.Logger) (*Service, error) {
	if updater == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment updater required")
	}
	return &Service{payments: updater, logg: logg}, nil
}

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

type SquarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	UpdatedAt   string `json:"updated_at"`
}

// HandleEvent processes Square payment events. Events for payments this
// service never created, and deliveries that arrive after a later status, are
// acknowledged without effect.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		payment := event.Data.Object.Payment
		if payment == nil || strings.TrimSpace(payment.ID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
		}
		return s.syncPayment(ctx, payment)
	default:
		return nil
	}
}

func (s *Service) syncPayment(ctx context.Context, payment *SquarePayment) error {
	status, ok := payments.ParseCardStatus(payment.Status)
	if !ok || status == enums.PaymentStatusProcessing {
		return nil
	}
	var paidAt *time.Time
	if status == enums.PaymentStatusCompleted {
		if parsed, err := time.Parse(time.RFC3339, payment.UpdatedAt); err == nil {
			paidAt = &parsed
		}
	}

	_, err := s.payments.UpdateStatusByReference(ctx, payment.ID, status, paidAt)
	switch {
	case err == nil:
		return nil
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		s.warn(ctx, payment, "square payment has no local record")
		return nil
	case pkgerrors.Is(err, pkgerrors.CodeInvalidStateTransition):
		if status == enums.PaymentStatusCompleted {
			s.critical(ctx, payment, err)
			return nil
		}
		s.warn(ctx, payment, "stale square payment status ignored")
		return nil
	default:
		return err
	}
}

func (s *Service) warn(ctx context.Context, payment *SquarePayment, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"square_payment_id": payment.ID,
		"square_status":     payment.Status,
	}), msg)
}

// critical flags a capture Square completed for a payment that already failed
// or was cancelled locally.
func (s *Service) critical(ctx context.Context, payment *SquarePayment, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Critical(s.logg.WithFields(ctx, map[string]any{
		"square_payment_id": payment.ID,
		"square_status":     payment.Status,
	}), "square payment completed but local payment cannot settle", err)
}
