package payouts

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/internal/testdb"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	svc, err := NewService(Params{
		Repository: NewRepository(db),
		Tx:         testdb.TxRunner{DB: db},
		Outbox:     testdb.Outbox(db),
		Minimum:    decimal.NewFromInt(10000),
	})
	require.NoError(t, err)
	return svc, db
}

func creditVendor(t *testing.T, svc Service, vendorID uuid.UUID, amount int64) {
	t.Helper()
	orderID := uuid.New()
	_, err := svc.CreditWallet(context.Background(), CreditInput{
		VendorID: vendorID,
		Amount:   decimal.NewFromInt(amount),
		Currency: enums.CurrencyTZS,
		OrderID:  &orderID,
	})
	require.NoError(t, err)
}

func assertWallet(t *testing.T, svc Service, vendorID uuid.UUID, available, pending, earned, withdrawn int64) {
	t.Helper()
	wallet, err := svc.GetWallet(context.Background(), vendorID)
	require.NoError(t, err)
	assert.True(t, wallet.AvailableBalance.Equal(decimal.NewFromInt(available)), "available %s", wallet.AvailableBalance)
	assert.True(t, wallet.PendingBalance.Equal(decimal.NewFromInt(pending)), "pending %s", wallet.PendingBalance)
	assert.True(t, wallet.TotalEarned.Equal(decimal.NewFromInt(earned)), "earned %s", wallet.TotalEarned)
	assert.True(t, wallet.TotalWithdrawn.Equal(decimal.NewFromInt(withdrawn)), "withdrawn %s", wallet.TotalWithdrawn)
}

func TestRequestPayoutHoldsFundsAndCompletes(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	vendor := uuid.New()
	creditVendor(t, svc, vendor, 50000)

	result, err := svc.RequestPayout(ctx, RequestInput{
		VendorID:       vendor,
		Amount:         decimal.NewFromInt(30000),
		PayoutMethodID: uuid.New(),
		Notes:          "weekly",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPending, result.Payout.Status)
	assert.Regexp(t, regexp.MustCompile(`^PO-\d{8}-[0-9A-F]{8}$`), result.Payout.PayoutReference)
	assert.True(t, result.Wallet.AvailableBalance.Equal(decimal.NewFromInt(20000)))
	assertWallet(t, svc, vendor, 20000, 30000, 50000, 0)

	admin := uuid.New()
	processing, err := svc.Process(ctx, ProcessInput{PayoutID: result.Payout.ID, Action: enums.PayoutActionMarkProcessing, ActorID: admin})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusProcessing, processing.Status)

	completed, err := svc.Process(ctx, ProcessInput{PayoutID: result.Payout.ID, Action: enums.PayoutActionComplete, ActorID: admin})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assertWallet(t, svc, vendor, 20000, 0, 50000, 30000)

	_, err = svc.Process(ctx, ProcessInput{PayoutID: result.Payout.ID, Action: enums.PayoutActionFail, ActorID: admin, Reason: "late"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidStateTransition), "got %v", err)
	assertWallet(t, svc, vendor, 20000, 0, 50000, 30000)

	var kinds []enums.WalletTransactionType
	require.NoError(t, db.Model(&models.WalletTransaction{}).Where("vendor_id = ?", vendor).Order("created_at ASC").Pluck("type", &kinds).Error)
	assert.Equal(t, []enums.WalletTransactionType{enums.WalletTxnCredit, enums.WalletTxnPayoutHold, enums.WalletTxnPayoutComplete}, kinds)
	assert.EqualValues(t, 1, testdb.CountEvents(t, db, enums.EventPayoutCompleted))
}

func TestCompleteStraightFromPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	vendor := uuid.New()
	creditVendor(t, svc, vendor, 50000)

	result, err := svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(30000), PayoutMethodID: uuid.New()})
	require.NoError(t, err)

	completed, err := svc.Process(ctx, ProcessInput{PayoutID: result.Payout.ID, Action: enums.PayoutActionComplete, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted, completed.Status)
	assertWallet(t, svc, vendor, 20000, 0, 50000, 30000)

	_, err = svc.Process(ctx, ProcessInput{PayoutID: result.Payout.ID, Action: enums.PayoutActionComplete, ActorID: uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidStateTransition), "got %v", err)
	assertWallet(t, svc, vendor, 20000, 0, 50000, 30000)
}

func TestFailedPayoutRestoresAvailableBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	vendor := uuid.New()
	creditVendor(t, svc, vendor, 40000)

	result, err := svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(25000), PayoutMethodID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Process(ctx, ProcessInput{PayoutID: result.Payout.ID, Action: enums.PayoutActionFail, ActorID: uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)

	failed, err := svc.Process(ctx, ProcessInput{PayoutID: result.Payout.ID, Action: enums.PayoutActionFail, ActorID: uuid.New(), Reason: "account closed"})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "account closed", *failed.FailureReason)
	assertWallet(t, svc, vendor, 40000, 0, 40000, 0)
}

func TestRequestPayoutEnforcesMinimumAndBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	vendor := uuid.New()

	_, err := svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(5000), PayoutMethodID: uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeBelowMinimum), "got %v", err)

	_, err = svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(20000), PayoutMethodID: uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientBalance), "got %v", err)

	creditVendor(t, svc, vendor, 50000)
	_, err = svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(30000), PayoutMethodID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(30000), PayoutMethodID: uuid.New()})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientBalance, typed.Code())
	assert.Equal(t, map[string]any{"available": "20000.00", "requested": "30000.00"}, typed.Details())
	assertWallet(t, svc, vendor, 20000, 30000, 50000, 0)
}

func TestCancelOnlyWhilePending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	vendor := uuid.New()
	creditVendor(t, svc, vendor, 60000)

	first, err := svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(20000), PayoutMethodID: uuid.New()})
	require.NoError(t, err)
	second, err := svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(15000), PayoutMethodID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, first.Payout.ID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)

	cancelled, err := svc.Cancel(ctx, first.Payout.ID, vendor)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCancelled, cancelled.Status)
	assertWallet(t, svc, vendor, 45000, 15000, 60000, 0)

	_, err = svc.Process(ctx, ProcessInput{PayoutID: second.Payout.ID, Action: enums.PayoutActionMarkProcessing, ActorID: uuid.New()})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, second.Payout.ID, vendor)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotPending), "got %v", err)
	assertWallet(t, svc, vendor, 45000, 15000, 60000, 0)
}

func TestCreditWalletIsIdempotentPerOrder(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	vendor := uuid.New()
	orderID := uuid.New()

	for i := 0; i < 2; i++ {
		wallet, err := svc.CreditWallet(ctx, CreditInput{VendorID: vendor, Amount: decimal.NewFromInt(100000), OrderID: &orderID})
		require.NoError(t, err)
		assert.True(t, wallet.AvailableBalance.Equal(decimal.NewFromInt(100000)))
		assert.Equal(t, enums.CurrencyTZS, wallet.Currency)
	}
	assert.EqualValues(t, 1, testdb.CountEvents(t, db, enums.EventWalletCredited))

	_, err := svc.CreditWallet(ctx, CreditInput{VendorID: vendor, Amount: decimal.NewFromInt(10), Currency: enums.CurrencyUSD})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestGetWalletForNewVendorIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	assertWallet(t, svc, uuid.New(), 0, 0, 0, 0)
}

func TestListPayoutsPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	vendor := uuid.New()
	creditVendor(t, svc, vendor, 100000)

	for i := 0; i < 3; i++ {
		_, err := svc.RequestPayout(ctx, RequestInput{VendorID: vendor, Amount: decimal.NewFromInt(10000), PayoutMethodID: uuid.New()})
		require.NoError(t, err)
	}

	page, err := svc.ListPayouts(ctx, vendor, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Payouts, 2)
	assert.NotEmpty(t, page.NextCursor)

	all, err := svc.ListPayouts(ctx, vendor, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Payouts, 3)
	assert.Empty(t, all.NextCursor)

	_, err = svc.ListPayouts(ctx, vendor, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestNewReferenceFormat(t *testing.T) {
	ref := NewReference(time.Date(2026, 1, 15, 23, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^PO-20260115-[0-9A-F]{8}$`, ref)
	assert.NotEqual(t, ref, NewReference(time.Date(2026, 1, 15, 23, 0, 0, 0, time.UTC)))
}
