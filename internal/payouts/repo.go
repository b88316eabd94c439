package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/pagination"
)

// Repository persists payouts, vendor wallets and the wallet journal. Balance
// changes are single UPDATE statements guarded in SQL so concurrent writers
// can never drive a bucket negative.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	EnsureWallet(ctx context.Context, vendorID uuid.UUID, currency enums.Currency) error
	FindWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error)
	CreditAvailable(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error)
	HoldForPayout(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error)
	CompleteHold(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error)
	ReleaseHold(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error)
	AppendWalletTransaction(ctx context.Context, txn *models.WalletTransaction) error
	FindOrderCredit(ctx context.Context, orderID uuid.UUID) (*models.WalletTransaction, error)

	CreatePayout(ctx context.Context, payout *models.Payout) error
	FindPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	TransitionPayout(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error)
	ListPayouts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error)
	ListStalePayouts(ctx context.Context, status enums.PayoutStatus, before time.Time, limit int) ([]models.Payout, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnsureWallet(ctx context.Context, vendorID uuid.UUID, currency enums.Currency) error {
	wallet := models.VendorWallet{
		VendorID:         vendorID,
		AvailableBalance: decimal.Zero,
		PendingBalance:   decimal.Zero,
		TotalEarned:      decimal.Zero,
		TotalWithdrawn:   decimal.Zero,
		Currency:         currency,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "vendor_id"}}, DoNothing: true}).
		Create(&wallet).Error
}

func (r *repository) FindWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error) {
	var wallet models.VendorWallet
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) CreditAvailable(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error) {
	return r.moveBalance(ctx, r.db.WithContext(ctx).Where("vendor_id = ?", vendorID), map[string]any{
		"available_balance": gorm.Expr("available_balance + ?", amount),
		"total_earned":      gorm.Expr("total_earned + ?", amount),
	})
}

func (r *repository) HoldForPayout(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error) {
	return r.moveBalance(ctx, r.db.WithContext(ctx).Where("vendor_id = ? AND available_balance >= ?", vendorID, amount), map[string]any{
		"available_balance": gorm.Expr("available_balance - ?", amount),
		"pending_balance":   gorm.Expr("pending_balance + ?", amount),
	})
}

func (r *repository) CompleteHold(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error) {
	return r.moveBalance(ctx, r.db.WithContext(ctx).Where("vendor_id = ? AND pending_balance >= ?", vendorID, amount), map[string]any{
		"pending_balance": gorm.Expr("pending_balance - ?", amount),
		"total_withdrawn": gorm.Expr("total_withdrawn + ?", amount),
	})
}

func (r *repository) ReleaseHold(ctx context.Context, vendorID uuid.UUID, amount decimal.Decimal) (bool, error) {
	return r.moveBalance(ctx, r.db.WithContext(ctx).Where("vendor_id = ? AND pending_balance >= ?", vendorID, amount), map[string]any{
		"pending_balance":   gorm.Expr("pending_balance - ?", amount),
		"available_balance": gorm.Expr("available_balance + ?", amount),
	})
}

func (r *repository) moveBalance(_ context.Context, scoped *gorm.DB, updates map[string]any) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := scoped.Model(&models.VendorWallet{}).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendWalletTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindOrderCredit(ctx context.Context, orderID uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, enums.WalletTxnCredit).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.Payout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// TransitionPayout moves a payout to the target status only while it is still
// in one of the expected statuses.
func (r *repository) TransitionPayout(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListPayouts returns a vendor's payouts newest first along with the cursor
// for the next page, empty when there is none.
func (r *repository) ListPayouts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		clause, args := cursor.After("requested_at")
		query = query.Where(clause, args...)
	}

	var rows []models.Payout
	if err := query.
		Order("requested_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}

	rows, cursor = pagination.Trim(rows, limit, func(p models.Payout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.RequestedAt, ID: p.ID}
	})
	if cursor == nil {
		return rows, "", nil
	}
	return rows, pagination.EncodeCursor(*cursor), nil
}

func (r *repository) ListStalePayouts(ctx context.Context, status enums.PayoutStatus, before time.Time, limit int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Payout
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
