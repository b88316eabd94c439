package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const (
	defaultPayoutStaleAfter = 72 * time.Hour
	payoutStaleBatchSize    = 200
)

type PayoutStaleJobParams struct {
	Logger     *logger.Logger
	Payouts    stalePayoutReader
	StaleAfter time.Duration
}

type stalePayoutReader interface {
	ListStale(ctx context.Context, status enums.PayoutStatus, olderThan time.Duration, limit int) ([]models.Payout, error)
}

// NewPayoutStaleJob reports payouts that have waited too long for an admin or
// the payout provider. It never changes payout state.
func NewPayoutStaleJob(params PayoutStaleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultPayoutStaleAfter
	}
	return &payoutStaleJob{
		logg:       params.Logger,
		payouts:    params.Payouts,
		staleAfter: staleAfter,
	}, nil
}

type payoutStaleJob struct {
	logg       *logger.Logger
	payouts    stalePayoutReader
	staleAfter time.Duration
}

func (j *payoutStaleJob) Name() string { return "payout-stale" }

func (j *payoutStaleJob) Run(ctx context.Context) error {
	var errs []error
	total := 0
	for _, status := range []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing} {
		rows, err := j.payouts.ListStale(ctx, status, j.staleAfter, payoutStaleBatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list stale %s payouts: %w", status, err))
			continue
		}
		for _, payout := range rows {
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"payout_id":        payout.ID.String(),
				"vendor_id":        payout.VendorID.String(),
				"payout_reference": payout.PayoutReference,
				"status":           string(payout.Status),
				"amount":           payout.Amount.StringFixed(2),
				"updated_at":       payout.UpdatedAt,
			}), "payout stale")
		}
		total += len(rows)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale_after": j.staleAfter.String(),
		"stale_count": total,
	}), "stale payout scan complete")
	return multierr.Combine(errs...)
}
