package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) (bool, error)
	AttachSMS(ctx context.Context, id uuid.UUID, sid string, status enums.SMSDeliveryStatus) error
	UpdateSMSStatus(ctx context.Context, sid string, status enums.SMSDeliveryStatus) (smsUpdateResult, error)
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      *pagination.Cursor
	UnreadOnly  bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

type smsUpdateResult struct {
	Updated bool
	Found   bool
}

var finalSMSStatuses = []enums.SMSDeliveryStatus{
	enums.SMSDeliveryDelivered,
	enums.SMSDeliveryUndelivered,
	enums.SMSDeliveryFailed,
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Create inserts the notification unless one already exists for the same
// event and recipient. It reports whether a row was written.
func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) (bool, error) {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(notification)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repositoryImpl) AttachSMS(ctx context.Context, id uuid.UUID, sid string, status enums.SMSDeliveryStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sms_sid":    sid,
			"sms_status": status,
		}).Error
}

// UpdateSMSStatus records a delivery report. Final statuses are never overwritten
// by late or reordered reports.
func (r *repositoryImpl) UpdateSMSStatus(ctx context.Context, sid string, status enums.SMSDeliveryStatus) (smsUpdateResult, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("sms_sid = ?", sid).
		Where("sms_status IS NULL OR sms_status NOT IN ?", finalSMSStatuses).
		Update("sms_status", status)
	if res.Error != nil {
		return smsUpdateResult{}, res.Error
	}
	if res.RowsAffected > 0 {
		return smsUpdateResult{Updated: true, Found: true}, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("sms_sid = ?", sid).
		Count(&count).Error; err != nil {
		return smsUpdateResult{}, err
	}
	return smsUpdateResult{Found: count > 0}, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", params.RecipientID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if params.Cursor != nil {
		clause, args := params.Cursor.After("created_at")
		query = query.Where(clause, args...)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&notifications).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Trim(notifications, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return rows, next, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, recipientID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}

	mark := notificationMarkResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteReadBefore removes up to limit notifications read before cutoff,
// oldest first.
func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	ids := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Select("id").
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Order("read_at ASC").
		Limit(limit)
	result := r.db.WithContext(ctx).
		Where("id IN (?)", ids).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
