package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/pagination"
)

// Service defines notification list/read operations and SMS delivery tracking.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	UpdateSMSStatus(ctx context.Context, sid, providerStatus string) error
}

type service struct {
	repo Repository
}

// ListParams configures pagination for notifications.
type ListParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      string
	UnreadOnly  bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.RecipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	query := listNotificationsParams{
		RecipientID: params.RecipientID,
		Limit:       params.Limit,
		UnreadOnly:  params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, recipientID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if recipientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	count, err := s.repo.MarkAllRead(ctx, recipientID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

// UpdateSMSStatus applies a delivery report from the SMS gateway callback.
func (s *service) UpdateSMSStatus(ctx context.Context, sid, providerStatus string) error {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message sid required")
	}
	status, ok := ParseProviderSMSStatus(providerStatus)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown sms status").WithDetails(map[string]any{
			"status": providerStatus,
		})
	}

	result, err := s.repo.UpdateSMSStatus(ctx, sid, status)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sms status")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found for sms")
	}
	return nil
}

// ParseProviderSMSStatus folds the provider's delivery vocabulary into ours.
func ParseProviderSMSStatus(raw string) (enums.SMSDeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "scheduled", "queued":
		return enums.SMSDeliveryQueued, true
	case "sending", "sent":
		return enums.SMSDeliverySent, true
	case "delivered", "read":
		return enums.SMSDeliveryDelivered, true
	case "undelivered":
		return enums.SMSDeliveryUndelivered, true
	case "failed", "canceled":
		return enums.SMSDeliveryFailed, true
	default:
		return "", false
	}
}
