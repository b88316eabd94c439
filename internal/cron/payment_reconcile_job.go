package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const (
	defaultPaymentStaleAfter = 15 * time.Minute
	defaultPaymentBatchSize  = 100
)

type PaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Payments   paymentSyncer
	StaleAfter time.Duration
	BatchSize  int
}

type paymentSyncer interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
	SyncStatus(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

// NewPaymentReconcileJob polls the processor for payments whose webhook never arrived.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultPaymentStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPaymentBatchSize
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		payments:   params.Payments,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	payments   paymentSyncer
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	stale, err := j.payments.ListStale(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var (
		errs    []error
		changed int
	)
	for _, payment := range stale {
		logCtx := j.logg.WithField(ctx, "payment_id", payment.ID.String())
		updated, err := j.payments.SyncStatus(ctx, payment.ID)
		if err != nil {
			j.logg.Warn(j.logg.WithField(logCtx, "error", err.Error()), "payment status sync failed")
			errs = append(errs, fmt.Errorf("sync payment %s: %w", payment.ID, err))
			continue
		}
		if updated != nil && updated.Status != payment.Status {
			changed++
			j.logg.Info(j.logg.WithField(logCtx, "status", string(updated.Status)), "payment status reconciled")
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"checked":  len(stale),
		"changed":  changed,
		"failures": len(errs),
	})
	j.logg.Info(logCtx, "payment reconciliation complete")
	return multierr.Combine(errs...)
}
