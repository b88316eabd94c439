package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Repository persists disputes raised against escrow accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispute *models.Dispute) error
	FindOpenByAccount(ctx context.Context, accountID uuid.UUID) (*models.Dispute, error)
	FindLatestByAccount(ctx context.Context, accountID uuid.UUID) (*models.Dispute, error)
	MarkResolved(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a dispute repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dispute *models.Dispute) error {
	if dispute.ID == uuid.Nil {
		dispute.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *repository) FindOpenByAccount(ctx context.Context, accountID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, enums.DisputeStatusOpen).
		First(&dispute).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) FindLatestByAccount(ctx context.Context, accountID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("opened_at DESC").
		First(&dispute).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

// MarkResolved only touches disputes that are still open.
func (r *repository) MarkResolved(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = enums.DisputeStatusResolved
	res := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND status = ?", id, enums.DisputeStatusOpen).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
