// Package payouts moves vendor earnings from the wallet to the vendor's payout
// method. Wallet buckets only change through guarded SQL increments.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/escrowpay-backend/pkg/db"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/metrics"
	"github.com/angelmondragon/escrowpay-backend/pkg/money"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/escrowpay-backend/pkg/pagination"
)

const referenceAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages vendor wallets and payouts.
type Service interface {
	RequestPayout(ctx context.Context, input RequestInput) (*RequestResult, error)
	Process(ctx context.Context, input ProcessInput) (*models.Payout, error)
	Cancel(ctx context.Context, payoutID, vendorID uuid.UUID) (*models.Payout, error)
	CreditWallet(ctx context.Context, input CreditInput) (*models.VendorWallet, error)
	CreditWalletInTx(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.VendorWallet, error)
	GetWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error)
	GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ListPayouts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*PayoutList, error)
	ListStale(ctx context.Context, status enums.PayoutStatus, olderThan time.Duration, limit int) ([]models.Payout, error)
}

type Params struct {
	Repository      Repository
	Tx              txRunner
	Outbox          outboxPublisher
	Metrics         *metrics.MoneyMetrics
	Logger          *logger.Logger
	Minimum         decimal.Decimal
	DefaultCurrency enums.Currency
}

type service struct {
	repo            Repository
	tx              txRunner
	outbox          outboxPublisher
	metrics         *metrics.MoneyMetrics
	logg            *logger.Logger
	minimum         decimal.Decimal
	defaultCurrency enums.Currency
	now             func() time.Time
}

// NewService wires the payout processor.
func NewService(p Params) (Service, error) {
	if p.Repository == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Minimum.IsNegative() {
		return nil, fmt.Errorf("payout minimum must not be negative")
	}
	currency := p.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyTZS
	}
	return &service{
		repo:            p.Repository,
		tx:              p.Tx,
		outbox:          p.Outbox,
		metrics:         p.Metrics,
		logg:            p.Logger,
		minimum:         p.Minimum,
		defaultCurrency: currency,
		now:             time.Now,
	}, nil
}

func (s *service) RequestPayout(ctx context.Context, input RequestInput) (*RequestResult, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	if input.PayoutMethodID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout method id required")
	}
	if err := money.ValidateAmount("amount", input.Amount, decimal.Zero); err != nil {
		return nil, err
	}
	if input.Amount.LessThan(s.minimum) {
		return nil, pkgerrors.New(pkgerrors.CodeBelowMinimum, fmt.Sprintf("minimum payout is %s", s.minimum.StringFixed(money.Scale))).
			WithDetails(map[string]any{
				"minimum":   s.minimum.StringFixed(money.Scale),
				"requested": input.Amount.StringFixed(money.Scale),
			})
	}

	var result *RequestResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := repo.FindWallet(ctx, input.VendorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return insufficient(decimal.Zero, input.Amount)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor wallet")
		}
		if input.Amount.GreaterThan(wallet.AvailableBalance) {
			return insufficient(wallet.AvailableBalance, input.Amount)
		}

		now := s.now().UTC()
		payout := &models.Payout{
			VendorID:       input.VendorID,
			PayoutMethodID: input.PayoutMethodID,
			Amount:         input.Amount,
			Currency:       wallet.Currency,
			Status:         enums.PayoutStatusPending,
			Notes:          optionalString(input.Notes),
			RequestedAt:    now,
		}
		if err := s.createWithReference(ctx, repo, payout, now); err != nil {
			return err
		}

		held, err := repo.HoldForPayout(ctx, input.VendorID, input.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hold payout funds")
		}
		if !held {
			return insufficient(wallet.AvailableBalance, input.Amount)
		}
		if err := s.journal(ctx, repo, payout, enums.WalletTxnPayoutHold); err != nil {
			return err
		}
		if err := s.emitPayoutEvent(ctx, tx, enums.EventPayoutRequested, payout); err != nil {
			return err
		}

		updated, err := repo.FindWallet(ctx, input.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload vendor wallet")
		}
		result = &RequestResult{Payout: payout, Wallet: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, result.Payout, "payout.requested")
	return result, nil
}

func (s *service) createWithReference(ctx context.Context, repo Repository, payout *models.Payout, now time.Time) error {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		payout.ID = uuid.New()
		payout.PayoutReference = NewReference(now)
		err := repo.CreatePayout(ctx, payout)
		if err == nil {
			return nil
		}
		if !dbpkg.IsUniqueViolation(err, "payout_reference") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate payout reference")
}

// Process applies mark_processing, complete or fail. Wallet effects commit
// with the status change.
func (s *service) Process(ctx context.Context, input ProcessInput) (*models.Payout, error) {
	if input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payout action %q", input.Action))
	}
	reason := strings.TrimSpace(input.Reason)
	if input.Action == enums.PayoutActionFail && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason required")
	}

	var payout *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, input.PayoutID)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		switch input.Action {
		case enums.PayoutActionMarkProcessing:
			payout, err = s.transition(ctx, repo, current, []enums.PayoutStatus{enums.PayoutStatusPending}, enums.PayoutStatusProcessing, map[string]any{
				"processing_at": now,
				"processed_by":  input.ActorID,
			})
			if err != nil {
				return err
			}
			return s.emitPayoutEvent(ctx, tx, enums.EventPayoutProcessing, payout)

		case enums.PayoutActionComplete:
			payout, err = s.transition(ctx, repo, current, []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}, enums.PayoutStatusCompleted, map[string]any{
				"completed_at": now,
				"processed_by": input.ActorID,
			})
			if err != nil {
				return err
			}
			ok, err := repo.CompleteHold(ctx, payout.VendorID, payout.Amount)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payout hold")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInternal, "pending balance below payout amount")
			}
			if err := s.journal(ctx, repo, payout, enums.WalletTxnPayoutComplete); err != nil {
				return err
			}
			return s.emitPayoutEvent(ctx, tx, enums.EventPayoutCompleted, payout)

		default:
			payout, err = s.transition(ctx, repo, current, []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}, enums.PayoutStatusFailed, map[string]any{
				"failed_at":      now,
				"failure_reason": reason,
				"processed_by":   input.ActorID,
			})
			if err != nil {
				return err
			}
			payout.FailureReason = &reason
			if err := s.releaseHold(ctx, repo, payout); err != nil {
				return err
			}
			return s.emitPayoutEvent(ctx, tx, enums.EventPayoutFailed, payout)
		}
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeInternal) {
			s.critical(ctx, input.PayoutID, "payout wallet divergence", err)
		}
		return nil, err
	}
	s.metrics.IncPayoutAction(string(input.Action))
	s.info(ctx, payout, "payout.processed")
	return payout, nil
}

// Cancel lets a vendor withdraw a payout request that nobody has picked up yet.
func (s *service) Cancel(ctx context.Context, payoutID, vendorID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}

	var payout *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		if current.VendorID != vendorID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		if current.Status != enums.PayoutStatusPending {
			return pkgerrors.New(pkgerrors.CodeNotPending, fmt.Sprintf("payout is %s", current.Status))
		}
		payout, err = s.transition(ctx, repo, current, []enums.PayoutStatus{enums.PayoutStatusPending}, enums.PayoutStatusCancelled, map[string]any{
			"cancelled_at": s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := s.releaseHold(ctx, repo, payout); err != nil {
			return err
		}
		return s.emitPayoutEvent(ctx, tx, enums.EventPayoutCancelled, payout)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPayoutAction("cancel")
	s.info(ctx, payout, "payout.cancelled")
	return payout, nil
}

func (s *service) CreditWallet(ctx context.Context, input CreditInput) (*models.VendorWallet, error) {
	var wallet *models.VendorWallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		wallet, err = s.CreditWalletInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// CreditWalletInTx adds order earnings to the available bucket. A second
// credit for the same order is a no-op.
func (s *service) CreditWalletInTx(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.VendorWallet, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if err := money.ValidateAmount("amount", input.Amount, decimal.Zero); err != nil {
		return nil, err
	}
	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	repo := s.repo.WithTx(tx)
	if input.OrderID != nil {
		if _, err := repo.FindOrderCredit(ctx, *input.OrderID); err == nil {
			return s.wallet(ctx, repo, input.VendorID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order credit")
		}
	}

	if err := repo.EnsureWallet(ctx, input.VendorID, currency); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure vendor wallet")
	}
	existing, err := s.wallet(ctx, repo, input.VendorID)
	if err != nil {
		return nil, err
	}
	if existing.Currency != currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("wallet holds %s, credit is %s", existing.Currency, currency))
	}

	ok, err := repo.CreditAvailable(ctx, input.VendorID, input.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit vendor wallet")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor wallet not found")
	}
	if err := repo.AppendWalletTransaction(ctx, &models.WalletTransaction{
		VendorID: input.VendorID,
		Type:     enums.WalletTxnCredit,
		Amount:   input.Amount,
		OrderID:  input.OrderID,
	}); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already credited")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record wallet credit")
	}

	wallet, err := s.wallet(ctx, repo, input.VendorID)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWalletCredited,
		AggregateType: enums.AggregateVendorWallet,
		AggregateID:   input.VendorID,
		Version:       1,
		Data: payloads.WalletCreditedEvent{
			VendorID:         input.VendorID,
			OrderID:          input.OrderID,
			Amount:           input.Amount,
			Currency:         currency,
			AvailableBalance: wallet.AvailableBalance,
			OccurredAt:       s.now().UTC(),
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit wallet credited event")
	}
	return wallet, nil
}

// GetWallet returns the vendor wallet; vendors with no earnings yet see zeros.
func (s *service) GetWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	wallet, err := s.repo.FindWallet(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.VendorWallet{
				VendorID:         vendorID,
				AvailableBalance: decimal.Zero,
				PendingBalance:   decimal.Zero,
				TotalEarned:      decimal.Zero,
				TotalWithdrawn:   decimal.Zero,
				Currency:         s.defaultCurrency,
			}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor wallet")
	}
	return wallet, nil
}

func (s *service) GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	return s.load(ctx, s.repo, payoutID)
}

func (s *service) ListPayouts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*PayoutList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListPayouts(ctx, vendorID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return &PayoutList{Payouts: rows, NextCursor: next}, nil
}

func (s *service) ListStale(ctx context.Context, status enums.PayoutStatus, olderThan time.Duration, limit int) ([]models.Payout, error) {
	rows, err := s.repo.ListStalePayouts(ctx, status, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payouts")
	}
	return rows, nil
}

func (s *service) transition(ctx context.Context, repo Repository, current *models.Payout, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (*models.Payout, error) {
	if !statusIn(current.Status, from) {
		return nil, invalidTransition(current.Status, to)
	}
	ok, err := repo.TransitionPayout(ctx, current.ID, from, to, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
	}
	if !ok {
		latest, loadErr := s.load(ctx, repo, current.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, invalidTransition(latest.Status, to)
	}
	return s.load(ctx, repo, current.ID)
}

func (s *service) releaseHold(ctx context.Context, repo Repository, payout *models.Payout) error {
	ok, err := repo.ReleaseHold(ctx, payout.VendorID, payout.Amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release payout hold")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "pending balance below payout amount")
	}
	return s.journal(ctx, repo, payout, enums.WalletTxnPayoutRelease)
}

func (s *service) journal(ctx context.Context, repo Repository, payout *models.Payout, kind enums.WalletTransactionType) error {
	payoutID := payout.ID
	if err := repo.AppendWalletTransaction(ctx, &models.WalletTransaction{
		VendorID: payout.VendorID,
		Type:     kind,
		Amount:   payout.Amount,
		PayoutID: &payoutID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record wallet transaction")
	}
	return nil
}

func (s *service) emitPayoutEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.Payout) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Version:       1,
		Data: payloads.PayoutEvent{
			PayoutID:        payout.ID,
			VendorID:        payout.VendorID,
			PayoutReference: payout.PayoutReference,
			Status:          payout.Status,
			Amount:          payout.Amount,
			Currency:        payout.Currency,
			FailureReason:   payout.FailureReason,
			OccurredAt:      s.now().UTC(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Payout, error) {
	payout, err := repo.FindPayout(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) wallet(ctx context.Context, repo Repository, vendorID uuid.UUID) (*models.VendorWallet, error) {
	wallet, err := repo.FindWallet(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor wallet")
	}
	return wallet, nil
}

func (s *service) info(ctx context.Context, payout *models.Payout, msg string) {
	if s.logg == nil || payout == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payout_id":        payout.ID.String(),
		"vendor_id":        payout.VendorID.String(),
		"payout_reference": payout.PayoutReference,
		"status":           payout.Status,
		"amount":           payout.Amount.StringFixed(money.Scale),
	}), msg)
}

func (s *service) critical(ctx context.Context, payoutID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Critical(s.logg.WithField(ctx, "payout_id", payoutID.String()), msg, err)
}

func insufficient(available, requested decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient available balance").
		WithDetails(map[string]any{
			"available": available.StringFixed(money.Scale),
			"requested": requested.StringFixed(money.Scale),
		})
}

func invalidTransition(from, to enums.PayoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStateTransition, fmt.Sprintf("payout cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func statusIn(status enums.PayoutStatus, allowed []enums.PayoutStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
