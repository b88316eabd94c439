package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/internal/disputes"
	"github.com/angelmondragon/escrowpay-backend/internal/testdb"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

func newLedger(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	bridge, err := disputes.NewService(disputes.NewRepository(db))
	require.NoError(t, err)
	return newLedgerWithBridge(t, db, bridge), db
}

func newLedgerWithBridge(t *testing.T, db *gorm.DB, bridge DisputeBridge) Service {
	t.Helper()
	svc, err := NewService(Params{
		Repository:      NewRepository(db),
		Tx:              testdb.TxRunner{DB: db},
		Outbox:          testdb.Outbox(db),
		Disputes:        bridge,
		MaxAmount:       decimal.NewFromInt(100000000),
		DefaultCurrency: enums.CurrencyTZS,
	})
	require.NoError(t, err)
	return svc
}

func createAccount(t *testing.T, svc Service, amount int64) *models.EscrowAccount {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{
		OrderID:  uuid.New(),
		BuyerID:  uuid.New(),
		VendorID: uuid.New(),
		Amount:   decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return account
}

func fundAccount(t *testing.T, svc Service, account *models.EscrowAccount, reference string) *models.EscrowAccount {
	t.Helper()
	funded, err := svc.Fund(context.Background(), FundInput{
		AccountID:        account.ID,
		PaymentReference: reference,
		PaymentAmount:    account.Amount,
	})
	require.NoError(t, err)
	return funded
}

func transactionTypes(t *testing.T, svc Service, accountID uuid.UUID) []enums.EscrowTransactionType {
	t.Helper()
	txns, err := svc.ListTransactions(context.Background(), accountID)
	require.NoError(t, err)
	types := make([]enums.EscrowTransactionType, 0, len(txns))
	for _, txn := range txns {
		types = append(types, txn.Type)
	}
	return types
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Truef(t, pkgerrors.Is(err, code), "expected %s, got %v", code, err)
}

func TestCreateAccountDefaultsAndValidation(t *testing.T) {
	svc, _ := newLedger(t)

	account := createAccount(t, svc, 100000)
	assert.Equal(t, enums.EscrowStatusPending, account.Status)
	assert.Equal(t, enums.CurrencyTZS, account.Currency)
	assert.Equal(t, 1, account.Version)

	ctx := context.Background()
	base := CreateAccountInput{OrderID: uuid.New(), BuyerID: uuid.New(), VendorID: uuid.New()}

	cases := map[string]CreateAccountInput{
		"zero amount":    withAmount(base, "0"),
		"three decimals": withAmount(base, "10.001"),
		"over ceiling":   withAmount(base, "100000000.01"),
		"bad currency":   withCurrency(withAmount(base, "10"), "KES"),
		"missing vendor": {OrderID: uuid.New(), BuyerID: uuid.New(), Amount: decimal.NewFromInt(10)},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateAccount(ctx, input)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}
}

func withAmount(input CreateAccountInput, amount string) CreateAccountInput {
	input.Amount = decimal.RequireFromString(amount)
	return input
}

func withCurrency(input CreateAccountInput, currency string) CreateAccountInput {
	input.Currency = currency
	return input
}

func TestCreateAccountIsIdempotentPerOrder(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()

	input := CreateAccountInput{
		OrderID:  uuid.New(),
		BuyerID:  uuid.New(),
		VendorID: uuid.New(),
		Amount:   decimal.NewFromInt(50000),
		Currency: "usd",
	}
	first, err := svc.CreateAccount(ctx, input)
	require.NoError(t, err)
	second, err := svc.CreateAccount(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.CurrencyUSD, second.Currency)

	var count int64
	require.NoError(t, db.Model(&models.EscrowAccount{}).Where("order_id = ?", input.OrderID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFundRejectsAmountMismatch(t *testing.T) {
	svc, _ := newLedger(t)
	account := createAccount(t, svc, 100000)

	_, err := svc.Fund(context.Background(), FundInput{
		AccountID:        account.ID,
		PaymentReference: "TX-1",
		PaymentAmount:    decimal.NewFromInt(90000),
	})
	requireCode(t, err, pkgerrors.CodeAmountMismatch)

	current, err := svc.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusPending, current.Status)
	assert.Empty(t, transactionTypes(t, svc, account.ID))
}

func TestFundTwiceWithSamePaymentFundsOnce(t *testing.T) {
	svc, db := newLedger(t)
	account := createAccount(t, svc, 100000)

	funded := fundAccount(t, svc, account, "TX-42")
	assert.Equal(t, enums.EscrowStatusFunded, funded.Status)
	require.NotNil(t, funded.FundedAt)

	again := fundAccount(t, svc, account, "TX-42")
	assert.Equal(t, enums.EscrowStatusFunded, again.Status)
	assert.Equal(t, funded.Version, again.Version)

	assert.Equal(t, []enums.EscrowTransactionType{enums.EscrowTxnDeposit}, transactionTypes(t, svc, account.ID))
	assert.Equal(t, int64(1), testdb.CountEvents(t, db, enums.EventEscrowFunded))

	_, err := svc.Fund(context.Background(), FundInput{
		AccountID:        account.ID,
		PaymentReference: "TX-other",
		PaymentAmount:    account.Amount,
	})
	requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
}

func TestReleaseTwiceFailsWithAlreadySettled(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	account := fundAccount(t, svc, createAccount(t, svc, 100000), "TX-1")

	released, err := svc.Release(ctx, SettleInput{AccountID: account.ID, Amount: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, released.Status)
	require.NotNil(t, released.ReleasedAt)

	_, err = svc.Release(ctx, SettleInput{AccountID: account.ID, Amount: decimal.NewFromInt(100000)})
	requireCode(t, err, pkgerrors.CodeAlreadySettled)
	_, err = svc.Refund(ctx, SettleInput{AccountID: account.ID, Amount: decimal.NewFromInt(100000)})
	requireCode(t, err, pkgerrors.CodeAlreadySettled)

	txns, err := svc.ListTransactions(ctx, account.ID)
	require.NoError(t, err)
	moved := decimal.Zero
	for _, txn := range txns {
		if txn.Type == enums.EscrowTxnRelease || txn.Type == enums.EscrowTxnRefund {
			moved = moved.Add(txn.Amount)
		}
	}
	assert.True(t, moved.Equal(decimal.NewFromInt(100000)), "moved %s", moved)
	assert.Equal(t, int64(1), testdb.CountEvents(t, db, enums.EventEscrowReleased))
	assert.Equal(t, int64(0), testdb.CountEvents(t, db, enums.EventEscrowRefunded))
}

func TestRefundTwiceFailsWithAlreadySettled(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	account := fundAccount(t, svc, createAccount(t, svc, 2500), "TX-2")

	refunded, err := svc.Refund(ctx, SettleInput{AccountID: account.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusRefunded, refunded.Status)

	_, err = svc.Refund(ctx, SettleInput{AccountID: account.ID})
	requireCode(t, err, pkgerrors.CodeAlreadySettled)
	assert.Equal(t, []enums.EscrowTransactionType{enums.EscrowTxnDeposit, enums.EscrowTxnRefund}, transactionTypes(t, svc, account.ID))
}

func TestSettleRequiresFullAmount(t *testing.T) {
	svc, _ := newLedger(t)
	account := fundAccount(t, svc, createAccount(t, svc, 100000), "TX-3")

	_, err := svc.Release(context.Background(), SettleInput{AccountID: account.ID, Amount: decimal.NewFromInt(40000)})
	requireCode(t, err, pkgerrors.CodeAmountMismatch)
}

func TestIllegalTransitionsFromPending(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	account := createAccount(t, svc, 1000)

	_, err := svc.Release(ctx, SettleInput{AccountID: account.ID})
	requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
	_, err = svc.Refund(ctx, SettleInput{AccountID: account.ID})
	requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
	_, err = svc.OpenDispute(ctx, OpenDisputeInput{AccountID: account.ID, OpenedBy: uuid.New(), Reason: "never shipped"})
	requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
	_, err = svc.ResolveDispute(ctx, ResolveDisputeInput{AccountID: account.ID, ResolvedBy: uuid.New(), Decision: enums.DisputeDecisionRefund})
	requireCode(t, err, pkgerrors.CodeInvalidStateTransition)
}

func TestDisputeResolvedWithRefund(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	account := fundAccount(t, svc, createAccount(t, svc, 75000), "TX-4")
	buyer := uuid.New()
	admin := uuid.New()

	opened, err := svc.OpenDispute(ctx, OpenDisputeInput{AccountID: account.ID, OpenedBy: buyer, Reason: "item damaged"})
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusDisputed, opened.Account.Status)
	assert.Equal(t, enums.DisputeStatusOpen, opened.Dispute.Status)

	_, err = svc.OpenDispute(ctx, OpenDisputeInput{AccountID: account.ID, OpenedBy: buyer, Reason: "again"})
	requireCode(t, err, pkgerrors.CodeInvalidStateTransition)

	notes := "photos confirm damage"
	resolved, err := svc.ResolveDispute(ctx, ResolveDisputeInput{
		AccountID:  account.ID,
		ResolvedBy: admin,
		Decision:   enums.DisputeDecisionRefund,
		Notes:      &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusRefunded, resolved.Account.Status)
	assert.Equal(t, enums.DisputeStatusResolved, resolved.Dispute.Status)
	require.NotNil(t, resolved.Dispute.Decision)
	assert.Equal(t, enums.DisputeDecisionRefund, *resolved.Dispute.Decision)

	stored, err := svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusRefunded, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)
	assert.NotNil(t, stored.RefundedAt)

	assert.Equal(t, []enums.EscrowTransactionType{
		enums.EscrowTxnDeposit,
		enums.EscrowTxnDisputeHold,
		enums.EscrowTxnRefund,
	}, transactionTypes(t, svc, account.ID))
	assert.Equal(t, int64(1), testdb.CountEvents(t, db, enums.EventDisputeResolved))

	_, err = svc.ResolveDispute(ctx, ResolveDisputeInput{AccountID: account.ID, ResolvedBy: admin, Decision: enums.DisputeDecisionRelease})
	requireCode(t, err, pkgerrors.CodeAlreadySettled)
}

func TestSettlingDisputedAccountResolvesDispute(t *testing.T) {
	cases := []struct {
		name     string
		settle   func(Service, context.Context, SettleInput) (*models.EscrowAccount, error)
		status   enums.EscrowStatus
		decision enums.DisputeDecision
	}{
		{name: "release", settle: Service.Release, status: enums.EscrowStatusReleased, decision: enums.DisputeDecisionRelease},
		{name: "refund", settle: Service.Refund, status: enums.EscrowStatusRefunded, decision: enums.DisputeDecisionRefund},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := newLedger(t)
			ctx := context.Background()
			account := fundAccount(t, svc, createAccount(t, svc, 5000), "TX-5-"+tc.name)

			_, err := svc.OpenDispute(ctx, OpenDisputeInput{AccountID: account.ID, OpenedBy: uuid.New(), Reason: "late"})
			require.NoError(t, err)

			admin := uuid.New()
			settled, err := tc.settle(svc, ctx, SettleInput{AccountID: account.ID, ActorID: admin})
			require.NoError(t, err)
			assert.Equal(t, tc.status, settled.Status)

			bridge, err := disputes.NewService(disputes.NewRepository(db))
			require.NoError(t, err)
			dispute, err := bridge.Get(ctx, account.ID)
			require.NoError(t, err)
			assert.Equal(t, enums.DisputeStatusResolved, dispute.Status)
			require.NotNil(t, dispute.Decision)
			assert.Equal(t, tc.decision, *dispute.Decision)
			require.NotNil(t, dispute.ResolvedBy)
			assert.Equal(t, admin, *dispute.ResolvedBy)
			assert.EqualValues(t, 1, testdb.CountEvents(t, db, enums.EventDisputeResolved))
		})
	}
}

func TestSettlingFundedAccountLeavesDisputesAlone(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	account := fundAccount(t, svc, createAccount(t, svc, 5000), "TX-5b")

	_, err := svc.Release(ctx, SettleInput{AccountID: account.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, testdb.CountEvents(t, db, enums.EventDisputeResolved))
}

type failingBridge struct{}

func (failingBridge) Open(context.Context, *gorm.DB, uuid.UUID, uuid.UUID, string) (*models.Dispute, error) {
	return nil, errors.New("dispute store down")
}

func (failingBridge) Resolve(context.Context, *gorm.DB, uuid.UUID, enums.DisputeDecision, uuid.UUID, *string) (*models.Dispute, error) {
	return nil, errors.New("dispute store down")
}

func TestOpenDisputeRollsBackWhenBridgeFails(t *testing.T) {
	db := testdb.Open(t)
	svc := newLedgerWithBridge(t, db, failingBridge{})
	ctx := context.Background()
	account := fundAccount(t, svc, createAccount(t, svc, 5000), "TX-6")

	_, err := svc.OpenDispute(ctx, OpenDisputeInput{AccountID: account.ID, OpenedBy: uuid.New(), Reason: "late"})
	require.Error(t, err)

	current, err := svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusFunded, current.Status)
	assert.Equal(t, []enums.EscrowTransactionType{enums.EscrowTxnDeposit}, transactionTypes(t, svc, account.ID))
	assert.Equal(t, int64(0), testdb.CountEvents(t, db, enums.EventEscrowDisputed))
}

func TestTransitionAccountRejectsStaleVersion(t *testing.T) {
	svc, db := newLedger(t)
	ctx := context.Background()
	account := fundAccount(t, svc, createAccount(t, svc, 1000), "TX-7")
	repo := NewRepository(db)

	ok, err := repo.TransitionAccount(ctx, account.ID, enums.EscrowStatusFunded, account.Version-1, map[string]any{"status": enums.EscrowStatusReleased})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.TransitionAccount(ctx, account.ID, enums.EscrowStatusPending, account.Version, map[string]any{"status": enums.EscrowStatusReleased})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.TransitionAccount(ctx, account.ID, enums.EscrowStatusFunded, account.Version, map[string]any{"status": enums.EscrowStatusReleased})
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Version+1, stored.Version)
}

func TestGetByOrderNotFound(t *testing.T) {
	svc, _ := newLedger(t)
	_, err := svc.GetByOrder(context.Background(), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}
