package releases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Repository persists escrow release requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, release *models.EscrowRelease) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowRelease, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.EscrowRelease, error)
	Decide(ctx context.Context, id uuid.UUID, status enums.ReleaseStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a release repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, release *models.EscrowRelease) error {
	if release.ID == uuid.Nil {
		release.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(release).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowRelease, error) {
	var release models.EscrowRelease
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&release).Error; err != nil {
		return nil, err
	}
	return &release, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.EscrowRelease, error) {
	var releases []models.EscrowRelease
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("requested_at DESC").
		Find(&releases).Error; err != nil {
		return nil, err
	}
	return releases, nil
}

// Decide moves a pending release to status. It reports false when the release
// was no longer pending.
func (r *repository) Decide(ctx context.Context, id uuid.UUID, status enums.ReleaseStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = status
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.EscrowRelease{}).
		Where("id = ? AND status = ?", id, enums.ReleaseStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
