package releases

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/internal/disputes"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow"
	"github.com/angelmondragon/escrowpay-backend/internal/testdb"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

type fixture struct {
	db       *gorm.DB
	ledger   escrow.Service
	releases Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testdb.Open(t)
	bridge, err := disputes.NewService(disputes.NewRepository(db))
	require.NoError(t, err)
	ledger, err := escrow.NewService(escrow.Params{
		Repository: escrow.NewRepository(db),
		Tx:         testdb.TxRunner{DB: db},
		Outbox:     testdb.Outbox(db),
		Disputes:   bridge,
		MaxAmount:  decimal.NewFromInt(100000000),
	})
	require.NoError(t, err)
	svc, err := NewService(NewRepository(db), testdb.TxRunner{DB: db}, ledger, nil)
	require.NoError(t, err)
	return fixture{db: db, ledger: ledger, releases: svc}
}

func (f fixture) fundedAccount(t *testing.T, amount int64) *models.EscrowAccount {
	t.Helper()
	ctx := context.Background()
	account, err := f.ledger.CreateAccount(ctx, escrow.CreateAccountInput{
		OrderID:  uuid.New(),
		BuyerID:  uuid.New(),
		VendorID: uuid.New(),
		Amount:   decimal.NewFromInt(amount),
		Currency: "TZS",
	})
	require.NoError(t, err)
	account, err = f.ledger.Fund(ctx, escrow.FundInput{
		AccountID:        account.ID,
		PaymentReference: "P-" + account.ID.String(),
		PaymentAmount:    account.Amount,
	})
	require.NoError(t, err)
	return account
}

func TestRequestApproveReleasesEscrowOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// O1: 100,000 TZS held, funded by payment P1.
	account := f.fundedAccount(t, 100000)

	release, err := f.releases.RequestRelease(ctx, RequestInput{
		AccountID:   account.ID,
		RequesterID: account.VendorID,
		Amount:      decimal.NewFromInt(100000),
		Reason:      "delivered",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReleaseStatusPending, release.Status)

	unchanged, err := f.ledger.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusFunded, unchanged.Status)

	approver := uuid.New()
	result, err := f.releases.Approve(ctx, release.ID, approver)
	require.NoError(t, err)
	assert.Equal(t, enums.ReleaseStatusApproved, result.Release.Status)
	assert.Equal(t, enums.EscrowStatusReleased, result.Account.Status)

	txns, err := f.ledger.ListTransactions(ctx, account.ID)
	require.NoError(t, err)
	var releasesRecorded []models.EscrowTransaction
	for _, txn := range txns {
		if txn.Type == enums.EscrowTxnRelease {
			releasesRecorded = append(releasesRecorded, txn)
		}
	}
	require.Len(t, releasesRecorded, 1)
	assert.True(t, releasesRecorded[0].Amount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, enums.CurrencyTZS, releasesRecorded[0].Currency)

	_, err = f.ledger.Refund(ctx, escrow.SettleInput{AccountID: account.ID, Amount: decimal.NewFromInt(100000)})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeAlreadySettled), "got %v", err)

	_, err = f.releases.Approve(ctx, release.ID, approver)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotPending), "got %v", err)
}

func TestApproveRollsBackWhenLedgerRefuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.fundedAccount(t, 20000)

	release, err := f.releases.RequestRelease(ctx, RequestInput{AccountID: account.ID, RequesterID: account.VendorID})
	require.NoError(t, err)

	_, err = f.ledger.Refund(ctx, escrow.SettleInput{AccountID: account.ID})
	require.NoError(t, err)

	_, err = f.releases.Approve(ctx, release.ID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeAlreadySettled), "got %v", err)

	stored, err := f.releases.Get(ctx, release.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReleaseStatusPending, stored.Status)
	assert.Nil(t, stored.ApproverID)
}

func TestRejectLeavesEscrowUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.fundedAccount(t, 30000)

	release, err := f.releases.RequestRelease(ctx, RequestInput{AccountID: account.ID, RequesterID: account.VendorID})
	require.NoError(t, err)

	_, err = f.releases.Reject(ctx, release.ID, uuid.New(), "")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)

	rejected, err := f.releases.Reject(ctx, release.ID, uuid.New(), "buyer reported missing items")
	require.NoError(t, err)
	assert.Equal(t, enums.ReleaseStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)

	_, err = f.releases.Approve(ctx, release.ID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotPending), "got %v", err)

	current, err := f.ledger.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusFunded, current.Status)

	list, err := f.releases.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRequestReleaseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.ledger.CreateAccount(ctx, escrow.CreateAccountInput{
		OrderID:  uuid.New(),
		BuyerID:  uuid.New(),
		VendorID: uuid.New(),
		Amount:   decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	_, err = f.releases.RequestRelease(ctx, RequestInput{AccountID: pending.ID, RequesterID: uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidStateTransition), "got %v", err)

	funded := f.fundedAccount(t, 1000)
	_, err = f.releases.RequestRelease(ctx, RequestInput{AccountID: funded.ID, RequesterID: uuid.New(), Amount: decimal.NewFromInt(500)})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeAmountMismatch), "got %v", err)

	_, err = f.releases.RequestRelease(ctx, RequestInput{AccountID: uuid.New(), RequesterID: uuid.New()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestApproveOnDisputedAccountClosesDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.fundedAccount(t, 30000)

	release, err := f.releases.RequestRelease(ctx, RequestInput{AccountID: account.ID, RequesterID: account.VendorID, Reason: "delivered"})
	require.NoError(t, err)
	_, err = f.ledger.OpenDispute(ctx, escrow.OpenDisputeInput{AccountID: account.ID, OpenedBy: account.BuyerID, Reason: "damaged"})
	require.NoError(t, err)

	approver := uuid.New()
	result, err := f.releases.Approve(ctx, release.ID, approver)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, result.Account.Status)

	bridge, err := disputes.NewService(disputes.NewRepository(f.db))
	require.NoError(t, err)
	dispute, err := bridge.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DisputeStatusResolved, dispute.Status)
	require.NotNil(t, dispute.Decision)
	assert.Equal(t, enums.DisputeDecisionRelease, *dispute.Decision)
	require.NotNil(t, dispute.ResolvedBy)
	assert.Equal(t, approver, *dispute.ResolvedBy)
}
