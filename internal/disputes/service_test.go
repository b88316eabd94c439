package disputes

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/internal/testdb"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

func TestOpenAndResolveDispute(t *testing.T) {
	db := testdb.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()
	accountID := uuid.New()
	buyer := uuid.New()

	var opened *models.Dispute
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		opened, err = svc.Open(ctx, tx, accountID, buyer, "  wrong size  ")
		return err
	}))
	assert.Equal(t, "wrong size", opened.Reason)
	assert.Equal(t, enums.DisputeStatusOpen, opened.Status)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Open(ctx, tx, accountID, buyer, "second")
		return err
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)

	admin := uuid.New()
	notes := "vendor accepted return"
	var resolved *models.Dispute
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		resolved, err = svc.Resolve(ctx, tx, accountID, enums.DisputeDecisionRefund, admin, &notes)
		return err
	}))
	assert.Equal(t, enums.DisputeStatusResolved, resolved.Status)

	stored, err := svc.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, stored.ID)
	assert.Equal(t, enums.DisputeStatusResolved, stored.Status)
	require.NotNil(t, stored.Decision)
	assert.Equal(t, enums.DisputeDecisionRefund, *stored.Decision)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, admin, *stored.ResolvedBy)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Resolve(ctx, tx, accountID, enums.DisputeDecisionRelease, admin, nil)
		return err
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestOpenRequiresTransactionAndReason(t *testing.T) {
	db := testdb.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Open(ctx, nil, uuid.New(), uuid.New(), "reason")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal), "got %v", err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Open(ctx, tx, uuid.New(), uuid.New(), " ")
		return err
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}
