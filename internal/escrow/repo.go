package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Repository persists escrow accounts and their journal. The journal has no
// update or delete path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAccount(ctx context.Context, account *models.EscrowAccount) error
	FindAccount(ctx context.Context, id uuid.UUID) (*models.EscrowAccount, error)
	FindAccountByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowAccount, error)
	TransitionAccount(ctx context.Context, id uuid.UUID, from enums.EscrowStatus, version int, updates map[string]any) (bool, error)
	AppendTransaction(ctx context.Context, txn *models.EscrowTransaction) error
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.EscrowTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAccount(ctx context.Context, account *models.EscrowAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Version == 0 {
		account.Version = 1
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindAccount(ctx context.Context, id uuid.UUID) (*models.EscrowAccount, error) {
	var account models.EscrowAccount
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccountByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowAccount, error) {
	var account models.EscrowAccount
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// TransitionAccount applies updates only when the row still carries the
// expected status and version. It reports false when another writer got there
// first.
func (r *repository) TransitionAccount(ctx context.Context, id uuid.UUID, from enums.EscrowStatus, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.EscrowAccount{}).
		Where("id = ? AND status = ? AND version = ?", id, from, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.EscrowTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.EscrowTransaction, error) {
	var txns []models.EscrowTransaction
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
