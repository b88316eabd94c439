// Package orders holds the slice of the order lifecycle that money movement
// drives: confirmation on payment and completion crediting the vendor.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/internal/payouts"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/money"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EscrowLookup finds the escrow account backing an order, if any.
type EscrowLookup interface {
	FindByOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.EscrowAccount, error)
}

// WalletCreditor lands order earnings in the vendor wallet.
type WalletCreditor interface {
	CreditWalletInTx(ctx context.Context, tx *gorm.DB, input payouts.CreditInput) (*models.VendorWallet, error)
}

// Service drives order status changes caused by money movement.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Confirm(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ConfirmInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	Complete(ctx context.Context, orderID, actorID uuid.UUID) (*CompletionResult, error)
}

// CreateInput registers an order awaiting payment.
type CreateInput struct {
	BuyerID     uuid.UUID
	VendorID    uuid.UUID
	TotalAmount decimal.Decimal
	Currency    string
}

// CompletionResult is the completed order and the credited wallet.
type CompletionResult struct {
	Order  *models.Order        `json:"order"`
	Wallet *models.VendorWallet `json:"wallet,omitempty"`
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	escrow    EscrowLookup
	wallets   WalletCreditor
	maxAmount decimal.Decimal
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, escrow EscrowLookup, wallets WalletCreditor, maxAmount decimal.Decimal) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow lookup required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet creditor required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    outbox,
		escrow:    escrow,
		wallets:   wallets,
		maxAmount: maxAmount,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if err := money.ValidateAmount("total_amount", input.TotalAmount, s.maxAmount); err != nil {
		return nil, err
	}
	currency, err := money.ResolveCurrency(input.Currency, enums.CurrencyTZS)
	if err != nil {
		return nil, err
	}
	order := &models.Order{
		BuyerID:     input.BuyerID,
		VendorID:    input.VendorID,
		TotalAmount: input.TotalAmount,
		Currency:    currency,
		Status:      enums.OrderStatusPendingPayment,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.load(ctx, s.repo, orderID)
}

func (s *service) Confirm(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.ConfirmInTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmInTx marks a pending order confirmed. Confirming twice is a no-op.
func (s *service) ConfirmInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	repo := s.repo.WithTx(tx)
	order, err := s.load(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusConfirmed || order.Status == enums.OrderStatusCompleted {
		return order, nil
	}

	now := time.Now().UTC()
	ok, err := repo.Transition(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPendingPayment}, enums.OrderStatusConfirmed, map[string]any{
		"confirmed_at": now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
	}
	if !ok {
		current, err := s.load(ctx, repo, order.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.OrderStatusConfirmed {
			return current, nil
		}
		return nil, invalidTransition(current.Status, enums.OrderStatusConfirmed)
	}
	order.Status = enums.OrderStatusConfirmed
	order.ConfirmedAt = &now

	if err := s.emit(ctx, tx, enums.EventOrderConfirmed, order, now); err != nil {
		return nil, err
	}
	return order, nil
}

// Complete closes the order and credits the vendor wallet with the order
// total. Escrow-backed orders can only complete once the escrow was released
// to the vendor.
func (s *service) Complete(ctx context.Context, orderID, actorID uuid.UUID) (*CompletionResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *CompletionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCompleted {
			result = &CompletionResult{Order: order}
			return nil
		}

		allowed, err := s.completable(ctx, tx, order)
		if err != nil {
			return err
		}
		if !allowed {
			return invalidTransition(order.Status, enums.OrderStatusCompleted)
		}

		now := time.Now().UTC()
		ok, err := repo.Transition(ctx, order.ID, []enums.OrderStatus{order.Status}, enums.OrderStatusCompleted, map[string]any{
			"completed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if !ok {
			current, err := s.load(ctx, repo, order.ID)
			if err != nil {
				return err
			}
			return invalidTransition(current.Status, enums.OrderStatusCompleted)
		}
		order.Status = enums.OrderStatusCompleted
		order.CompletedAt = &now

		orderRef := order.ID
		wallet, err := s.wallets.CreditWalletInTx(ctx, tx, payouts.CreditInput{
			VendorID: order.VendorID,
			Amount:   order.TotalAmount,
			Currency: order.Currency,
			OrderID:  &orderRef,
		})
		if err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventOrderCompleted, order, now); err != nil {
			return err
		}
		result = &CompletionResult{Order: order, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) completable(ctx context.Context, tx *gorm.DB, order *models.Order) (bool, error) {
	account, err := s.escrow.FindByOrderInTx(ctx, tx, order.ID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return order.Status == enums.OrderStatusConfirmed, nil
		}
		return false, err
	}
	if account.Status != enums.EscrowStatusReleased {
		return false, pkgerrors.New(pkgerrors.CodeInvalidStateTransition, fmt.Sprintf("escrow for order is %s", account.Status)).
			WithDetails(map[string]any{"escrow_status": account.Status})
	}
	return order.Status == enums.OrderStatusConfirmed || order.Status == enums.OrderStatusPendingPayment, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, at time.Time) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderStatusEvent{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			VendorID:    order.VendorID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
			Currency:    order.Currency,
			OccurredAt:  at,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStateTransition, fmt.Sprintf("order cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
