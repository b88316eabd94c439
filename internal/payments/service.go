// Package payments records payment attempts for orders and drives them
// through the mobile-money gateway and the card processor.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/internal/escrow"
	"github.com/angelmondragon/escrowpay-backend/internal/idempotency"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/gateway"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/money"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/escrowpay-backend/pkg/square"
)

const (
	operationMobileMoney = "mobilemoney"
	operationCard        = "card"
	operationRefund      = "refund"
	providerSquare       = "square"
	simulatedPrefix      = "SIM-"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Gateway is the mobile-money gateway surface the orchestrator uses.
type Gateway interface {
	Configured() bool
	InitiatePayment(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error)
	Refund(ctx context.Context, transactionID string, req gateway.RefundRequest) (*gateway.RefundResponse, error)
	GetStatus(ctx context.Context, transactionID string) (*gateway.StatusResponse, error)
}

// CardProcessor charges and refunds cards.
type CardProcessor interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*square.Refund, error)
}

// EscrowFunder is the part of the escrow ledger a settled payment touches.
type EscrowFunder interface {
	FindByOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.EscrowAccount, error)
	FundInTx(ctx context.Context, tx *gorm.DB, input escrow.FundInput) (*models.EscrowAccount, error)
	RefundInTx(ctx context.Context, tx *gorm.DB, input escrow.SettleInput) (*models.EscrowAccount, error)
}

// OrderConfirmer confirms orders that are paid without escrow.
type OrderConfirmer interface {
	ConfirmInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
}

// ResponseCache replays the first answer given for an operation and keeps
// concurrent callers from repeating it.
type ResponseCache interface {
	Lookup(ctx context.Context, key idempotency.Key, out any) (bool, error)
	Store(ctx context.Context, key idempotency.Key, response any)
	Claim(ctx context.Context, key idempotency.Key) (func(), error)
}

// Service orchestrates payment attempts.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Payment, error)
	InitializeMobileMoney(ctx context.Context, input CreateInput) (*InitResult, error)
	InitializeCard(ctx context.Context, input CardInput) (*InitResult, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) (*models.Payment, error)
	UpdateStatusByReference(ctx context.Context, reference string, status enums.PaymentStatus, paidAt *time.Time) (*models.Payment, error)
	SyncStatus(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	RequestRefund(ctx context.Context, input RefundInput) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

// Params wires the orchestrator.
type Params struct {
	Repository      Repository
	Tx              txRunner
	Outbox          outboxPublisher
	Gateway         Gateway
	Cards           CardProcessor
	Escrow          EscrowFunder
	Orders          OrderConfirmer
	Cache           ResponseCache
	Logger          *logger.Logger
	Production      bool
	MaxAmount       decimal.Decimal
	DefaultCurrency enums.Currency
}

type service struct {
	repo            Repository
	tx              txRunner
	outbox          outboxPublisher
	gateway         Gateway
	cards           CardProcessor
	escrow          EscrowFunder
	orders          OrderConfirmer
	cache           ResponseCache
	logg            *logger.Logger
	production      bool
	maxAmount       decimal.Decimal
	defaultCurrency enums.Currency
	now             func() time.Time
}

// NewService validates the dependencies and returns the orchestrator. Cards
// may be nil when no card processor is configured.
func NewService(params Params) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow ledger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order confirmer required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("idempotency cache required")
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyTZS
	}
	return &service{
		repo:            params.Repository,
		tx:              params.Tx,
		outbox:          params.Outbox,
		gateway:         params.Gateway,
		cards:           params.Cards,
		escrow:          params.Escrow,
		orders:          params.Orders,
		cache:           params.Cache,
		logg:            params.Logger,
		production:      params.Production,
		maxAmount:       params.MaxAmount,
		defaultCurrency: currency,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create validates and persists a pending payment.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Payment, error) {
	payment, err := s.build(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	return payment, nil
}

func (s *service) build(input CreateInput) (*models.Payment, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if err := money.ValidateAmount("amount", input.Amount, s.maxAmount); err != nil {
		return nil, err
	}
	currency, err := money.ResolveCurrency(input.Currency, s.defaultCurrency)
	if err != nil {
		return nil, err
	}
	method := input.Method
	if method == "" {
		method = enums.PaymentMethodMobileMoney
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}

	payment := &models.Payment{
		ID:       uuid.New(),
		OrderID:  input.OrderID,
		BuyerID:  input.BuyerID,
		Method:   method,
		Status:   enums.PaymentStatusPending,
		Amount:   input.Amount,
		Currency: currency,
	}
	if method.IsMobileMoney() {
		phone, err := NormalizePhone(input.PhoneNumber)
		if err != nil {
			return nil, err
		}
		operator := DetectProvider(phone)
		if method == enums.PaymentMethodMobileMoney {
			payment.Method = operator
		}
		provider := string(operator)
		payment.PhoneNumber = &phone
		payment.Provider = &provider
	}
	if method == enums.PaymentMethodCard {
		provider := providerSquare
		payment.Provider = &provider
	}
	return payment, nil
}

// InitializeMobileMoney starts a mobile-money collection for an order. The
// first answer for an order is cached and replayed to retries, so the gateway
// is asked at most once per order.
func (s *service) InitializeMobileMoney(ctx context.Context, input CreateInput) (*InitResult, error) {
	if input.Method == enums.PaymentMethodCard {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card payments use the card endpoint")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	key := idempotency.Key{ResourceType: "order", ResourceID: input.OrderID.String(), Operation: operationMobileMoney}
	release, cached, err := s.claimInit(ctx, key)
	if err != nil || cached != nil {
		return cached, err
	}
	defer release()

	payment, err := s.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	ctx = s.paymentContext(ctx, payment)

	if !s.gateway.Configured() {
		if s.production {
			err := pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
			s.critical(ctx, "payment gateway misconfigured in production", err)
			return nil, s.fail(ctx, payment, err)
		}
		return s.simulate(ctx, key, payment)
	}

	resp, err := s.gateway.InitiatePayment(ctx, gateway.InitiateRequest{
		Amount:        payment.Amount,
		Currency:      string(payment.Currency),
		PaymentMethod: string(payment.Method),
		PhoneNumber:   stringValue(payment.PhoneNumber),
		Reference:     payment.ID.String(),
		Metadata: map[string]string{
			"order_id": payment.OrderID.String(),
			"buyer_id": payment.BuyerID.String(),
		},
	})
	if err != nil {
		if gateway.IsUnreachable(err) && !s.production {
			s.warn(ctx, "payment gateway unreachable, simulating", err)
			return s.simulate(ctx, key, payment)
		}
		if gateway.IsUnreachable(err) {
			s.critical(ctx, "payment gateway unreachable in production", err)
		}
		return nil, s.fail(ctx, payment, err)
	}

	if err := s.markProcessing(ctx, payment, resp.TransactionID, false); err != nil {
		return nil, err
	}
	result := &InitResult{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		Status:        payment.Status,
		Method:        payment.Method,
		TransactionID: resp.TransactionID,
		ExpiresIn:     resp.ExpiresIn,
		Message:       "confirm the payment on your phone",
	}
	s.cache.Store(ctx, key, result)
	s.info(ctx, "mobile money payment initiated")
	return result, nil
}

// claimInit returns the cached result for key, or claims key for this caller.
// The cache is read again after the claim so a holder that finished in
// between is replayed rather than repeated.
func (s *service) claimInit(ctx context.Context, key idempotency.Key) (func(), *InitResult, error) {
	if cached, err := s.lookupInit(ctx, key); err != nil || cached != nil {
		return nil, cached, err
	}
	release, err := s.cache.Claim(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	cached, err := s.lookupInit(ctx, key)
	if err != nil || cached != nil {
		release()
		return nil, cached, err
	}
	return release, nil, nil
}

func (s *service) lookupInit(ctx context.Context, key idempotency.Key) (*InitResult, error) {
	var cached InitResult
	hit, err := s.cache.Lookup(ctx, key, &cached)
	if err != nil || !hit {
		return nil, err
	}
	return &cached, nil
}

func (s *service) simulate(ctx context.Context, key idempotency.Key, payment *models.Payment) (*InitResult, error) {
	reference := simulatedPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	if err := s.markProcessing(ctx, payment, reference, true); err != nil {
		return nil, err
	}
	result := &InitResult{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		Status:        payment.Status,
		Method:        payment.Method,
		TransactionID: reference,
		Simulated:     true,
		Mode:          ModeDevelopment,
		Message:       "payment gateway not reachable, payment simulated",
	}
	s.cache.Store(ctx, key, result)
	s.info(ctx, "payment simulated")
	return result, nil
}

// InitializeCard charges a card nonce. A charge Square reports as completed
// settles the payment immediately.
func (s *service) InitializeCard(ctx context.Context, input CardInput) (*InitResult, error) {
	if s.cards == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card payments not configured")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source required")
	}
	key := idempotency.Key{ResourceType: "order", ResourceID: input.OrderID.String(), Operation: operationCard}
	release, cached, err := s.claimInit(ctx, key)
	if err != nil || cached != nil {
		return cached, err
	}
	defer release()

	payment, err := s.Create(ctx, CreateInput{
		OrderID:  input.OrderID,
		BuyerID:  input.BuyerID,
		Amount:   input.Amount,
		Currency: input.Currency,
		Method:   enums.PaymentMethodCard,
	})
	if err != nil {
		return nil, err
	}
	ctx = s.paymentContext(ctx, payment)

	charge, err := s.cards.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    square.MinorUnits(payment.Amount),
		Currency:       string(payment.Currency),
		SourceID:       input.SourceID,
		ReferenceID:    payment.ID.String(),
		Note:           "order " + payment.OrderID.String(),
		IdempotencyKey: "card-" + payment.ID.String(),
	})
	if err != nil {
		return nil, s.fail(ctx, payment, err)
	}
	reference := stringValue(charge.GetID())
	if reference == "" {
		return nil, s.fail(ctx, payment, pkgerrors.New(pkgerrors.CodeGateway, "card charge missing payment id"))
	}
	if err := s.markProcessing(ctx, payment, reference, false); err != nil {
		return nil, err
	}

	if status, ok := ParseCardStatus(stringValue(charge.GetStatus())); ok && status != enums.PaymentStatusProcessing {
		now := s.now()
		updated, err := s.UpdateStatus(ctx, StatusUpdate{PaymentID: payment.ID, Status: status, ExternalReference: reference, PaidAt: &now})
		if err != nil {
			return nil, err
		}
		payment = updated
	}

	result := &InitResult{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		Status:        payment.Status,
		Method:        payment.Method,
		TransactionID: reference,
	}
	s.cache.Store(ctx, key, result)
	s.info(ctx, "card payment initiated")
	return result, nil
}

func (s *service) markProcessing(ctx context.Context, payment *models.Payment, reference string, simulated bool) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, payment.ID, []enums.PaymentStatus{enums.PaymentStatusPending}, enums.PaymentStatusProcessing, map[string]any{
			"external_reference": reference,
			"simulated":          simulated,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway reference")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer pending")
		}
		payment.Status = enums.PaymentStatusProcessing
		payment.ExternalReference = &reference
		payment.Simulated = simulated
		return s.emit(ctx, tx, payment, enums.EventPaymentProcessing)
	})
}

// fail records the gateway error on the payment and returns cause.
func (s *service) fail(ctx context.Context, payment *models.Payment, cause error) error {
	message := publicMessage(cause)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, payment.ID, []enums.PaymentStatus{enums.PaymentStatusPending}, enums.PaymentStatusFailed, map[string]any{
			"error_message": message,
		})
		if err != nil || !ok {
			return err
		}
		payment.Status = enums.PaymentStatusFailed
		payment.ErrorMessage = &message
		return s.emit(ctx, tx, payment, enums.EventPaymentFailed)
	})
	if err != nil {
		s.logError(ctx, "record payment failure", err)
	}
	s.warn(ctx, "payment initiation failed", cause)
	return cause
}

// UpdateStatus applies a gateway-reported status. Re-applying the current
// status is a no-op, so duplicate deliveries are harmless.
func (s *service) UpdateStatus(ctx context.Context, update StatusUpdate) (*models.Payment, error) {
	if update.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !update.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", update.Status))
	}

	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payment, err = s.applyStatus(ctx, tx, update)
		return err
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeAmountMismatch) {
			s.critical(ctx, "settled payment does not match escrow", err)
		}
		return nil, err
	}
	return payment, nil
}

func (s *service) UpdateStatusByReference(ctx context.Context, reference string, status enums.PaymentStatus, paidAt *time.Time) (*models.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	payment, err := s.repo.FindByExternalReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for transaction")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by reference")
	}
	return s.UpdateStatus(ctx, StatusUpdate{
		PaymentID:         payment.ID,
		Status:            status,
		ExternalReference: reference,
		PaidAt:            paidAt,
	})
}

func (s *service) applyStatus(ctx context.Context, tx *gorm.DB, update StatusUpdate) (*models.Payment, error) {
	repo := s.repo.WithTx(tx)
	payment, err := s.load(ctx, repo, update.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == update.Status {
		return payment, nil
	}
	from, allowed := allowedFrom[update.Status]
	if !allowed || !containsStatus(from, payment.Status) {
		return nil, invalidTransition(payment.Status, update.Status)
	}

	now := s.now()
	updates := map[string]any{}
	if update.ExternalReference != "" && payment.ExternalReference == nil {
		reference := update.ExternalReference
		updates["external_reference"] = reference
		payment.ExternalReference = &reference
	}
	switch update.Status {
	case enums.PaymentStatusCompleted:
		paidAt := now
		if update.PaidAt != nil {
			paidAt = update.PaidAt.UTC()
		}
		updates["paid_at"] = paidAt
		payment.PaidAt = &paidAt
	case enums.PaymentStatusFailed, enums.PaymentStatusCancelled:
		if message := strings.TrimSpace(update.ErrorMessage); message != "" {
			updates["error_message"] = message
			payment.ErrorMessage = &message
		}
	case enums.PaymentStatusRefunded:
		updates["refunded_at"] = now
		payment.RefundedAt = &now
	}

	ok, err := repo.Transition(ctx, payment.ID, []enums.PaymentStatus{payment.Status}, update.Status, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !ok {
		current, err := s.load(ctx, repo, payment.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == update.Status {
			return current, nil
		}
		return nil, invalidTransition(current.Status, update.Status)
	}
	payment.Status = update.Status

	if update.Status == enums.PaymentStatusCompleted {
		if err := s.settle(ctx, tx, payment); err != nil {
			return nil, err
		}
	}
	if err := s.emit(ctx, tx, payment, eventFor(update.Status)); err != nil {
		return nil, err
	}
	return payment, nil
}

// settle funds the order's escrow account, or confirms the order directly
// when it is not escrow-backed.
func (s *service) settle(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	account, err := s.escrow.FindByOrderInTx(ctx, tx, payment.OrderID)
	if err != nil && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return err
	}
	if account != nil {
		reference := payment.ID.String()
		if payment.ExternalReference != nil {
			reference = *payment.ExternalReference
		}
		_, err := s.escrow.FundInTx(ctx, tx, escrow.FundInput{
			AccountID:        account.ID,
			PaymentReference: reference,
			PaymentAmount:    payment.Amount,
		})
		return err
	}

	if _, err := s.orders.ConfirmInTx(ctx, tx, payment.OrderID); err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			s.warn(ctx, "paid order is not registered, nothing to confirm", err)
			return nil
		}
		return err
	}
	return nil
}

// SyncStatus asks the processor for the current state of a payment that is
// still processing and applies it.
func (s *service) SyncStatus(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusProcessing || payment.Simulated || payment.ExternalReference == nil {
		return payment, nil
	}
	reference := *payment.ExternalReference

	var (
		status enums.PaymentStatus
		paidAt *time.Time
		known  bool
	)
	if payment.Method == enums.PaymentMethodCard {
		if s.cards == nil {
			return payment, nil
		}
		charge, err := s.cards.GetPayment(ctx, reference)
		if err != nil {
			return nil, err
		}
		status, known = ParseCardStatus(stringValue(charge.GetStatus()))
	} else {
		resp, err := s.gateway.GetStatus(ctx, reference)
		if err != nil {
			return nil, err
		}
		status, known = ParseGatewayStatus(resp.Status)
		paidAt = resp.PaidAt
	}
	if !known || status == payment.Status {
		return payment, nil
	}
	return s.UpdateStatus(ctx, StatusUpdate{PaymentID: payment.ID, Status: status, ExternalReference: reference, PaidAt: paidAt})
}

// RequestRefund returns a completed payment to the buyer. Money already
// released to the vendor cannot be refunded here; a funded escrow account is
// refunded together with the payment. The refund is claimed per payment before
// the status is read, so only one caller ever reaches the processor.
func (s *service) RequestRefund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}
	release, err := s.cache.Claim(ctx, idempotency.Key{ResourceType: "payment", ResourceID: input.PaymentID.String(), Operation: operationRefund})
	if err != nil {
		return nil, err
	}
	defer release()

	payment, err := s.Get(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	ctx = s.paymentContext(ctx, payment)
	switch payment.Status {
	case enums.PaymentStatusCompleted:
	case enums.PaymentStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "payment already refunded")
	default:
		return nil, invalidTransition(payment.Status, enums.PaymentStatusRefunded)
	}

	amount := input.Amount
	if amount.IsZero() {
		amount = payment.Amount
	}
	if err := money.ValidateAmount("amount", amount, decimal.Zero); err != nil {
		return nil, err
	}
	if amount.GreaterThan(payment.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds payment amount").
			WithDetails(map[string]any{
				"payment_amount": payment.Amount.StringFixed(2),
				"requested":      amount.StringFixed(2),
			})
	}
	if err := s.checkRefundable(ctx, payment, amount); err != nil {
		return nil, err
	}

	refundRef, err := s.refundAtProcessor(ctx, payment, amount, reason)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		ok, err := repo.Transition(ctx, payment.ID, []enums.PaymentStatus{enums.PaymentStatusCompleted}, enums.PaymentStatusRefunded, map[string]any{
			"refund_reference": refundRef,
			"refund_reason":    reason,
			"refunded_at":      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeAlreadySettled, "payment already refunded")
		}
		payment.Status = enums.PaymentStatusRefunded
		payment.RefundReference = &refundRef
		payment.RefundReason = &reason
		payment.RefundedAt = &now

		account, err := s.escrow.FindByOrderInTx(ctx, tx, payment.OrderID)
		if err != nil && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return err
		}
		if account != nil && account.Status == enums.EscrowStatusFunded {
			if _, err := s.escrow.RefundInTx(ctx, tx, escrow.SettleInput{
				AccountID: account.ID,
				ActorID:   input.ActorID,
				Reference: &refundRef,
				Notes:     &reason,
			}); err != nil {
				return err
			}
		}
		return s.emit(ctx, tx, payment, enums.EventPaymentRefunded)
	})
	if err != nil {
		s.critical(ctx, "refund sent to processor but not recorded", err)
		return nil, err
	}
	s.info(ctx, "payment refunded")
	return payment, nil
}

func (s *service) checkRefundable(ctx context.Context, payment *models.Payment, amount decimal.Decimal) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := s.escrow.FindByOrderInTx(ctx, tx, payment.OrderID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		}
		switch account.Status {
		case enums.EscrowStatusFunded:
			if !amount.Equal(account.Amount) {
				return money.Mismatch(account.Amount, amount)
			}
			return nil
		case enums.EscrowStatusRefunded:
			return nil
		case enums.EscrowStatusReleased:
			return pkgerrors.New(pkgerrors.CodeAlreadySettled, "escrow already released to the vendor")
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidStateTransition, fmt.Sprintf("cannot refund while escrow is %s", account.Status)).
				WithDetails(map[string]any{"escrow_status": account.Status})
		}
	})
}

func (s *service) refundAtProcessor(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reason string) (string, error) {
	if payment.Simulated {
		return simulatedPrefix + "RF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]), nil
	}
	if payment.ExternalReference == nil {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no processor reference")
	}
	reference := *payment.ExternalReference

	if payment.Method == enums.PaymentMethodCard {
		if s.cards == nil {
			return "", pkgerrors.New(pkgerrors.CodeDependency, "card payments not configured")
		}
		refund, err := s.cards.RefundPayment(ctx, square.RefundParams{
			PaymentID:      reference,
			AmountCents:    square.MinorUnits(amount),
			Currency:       string(payment.Currency),
			Reason:         reason,
			IdempotencyKey: refundKey(payment.ID),
		})
		if err != nil {
			return "", err
		}
		return refund.ID, nil
	}

	resp, err := s.gateway.Refund(ctx, reference, gateway.RefundRequest{
		Amount:         amount,
		Reason:         reason,
		Reference:      payment.ID.String(),
		IdempotencyKey: refundKey(payment.ID),
	})
	if err != nil {
		return "", err
	}
	return resp.RefundID, nil
}

func refundKey(paymentID uuid.UUID) string {
	return "refund-" + paymentID.String()
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	return s.load(ctx, s.repo, paymentID)
}

// ListStale returns payments still processing that were last touched before the cutoff.
func (s *service) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	rows, err := s.repo.ListStale(ctx, enums.PaymentStatusProcessing, before, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payments")
	}
	return rows, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, payment *models.Payment, eventType enums.OutboxEventType) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Data: payloads.PaymentStatusEvent{
			PaymentID:         payment.ID,
			OrderID:           payment.OrderID,
			BuyerID:           payment.BuyerID,
			Method:            payment.Method,
			Status:            payment.Status,
			Amount:            payment.Amount,
			Currency:          payment.Currency,
			ExternalReference: payment.ExternalReference,
			PhoneNumber:       payment.PhoneNumber,
			ErrorMessage:      payment.ErrorMessage,
			Simulated:         payment.Simulated,
			OccurredAt:        s.now(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Payment, error) {
	payment, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func (s *service) paymentContext(ctx context.Context, payment *models.Payment) context.Context {
	if s.logg == nil {
		return ctx
	}
	fields := map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   payment.OrderID.String(),
		"method":     string(payment.Method),
	}
	if payment.PhoneNumber != nil {
		fields["phone_number"] = logger.RedactPhone(*payment.PhoneNumber)
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
	}
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func (s *service) critical(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Critical(ctx, msg, err)
	}
}

var allowedFrom = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusProcessing: {enums.PaymentStatusPending},
	enums.PaymentStatusCompleted:  {enums.PaymentStatusProcessing},
	enums.PaymentStatusFailed:     {enums.PaymentStatusPending, enums.PaymentStatusProcessing},
	enums.PaymentStatusCancelled:  {enums.PaymentStatusPending, enums.PaymentStatusProcessing},
	enums.PaymentStatusRefunded:   {enums.PaymentStatusCompleted},
}

func eventFor(status enums.PaymentStatus) enums.OutboxEventType {
	switch status {
	case enums.PaymentStatusProcessing:
		return enums.EventPaymentProcessing
	case enums.PaymentStatusCompleted:
		return enums.EventPaymentCompleted
	case enums.PaymentStatusRefunded:
		return enums.EventPaymentRefunded
	default:
		return enums.EventPaymentFailed
	}
}

// ParseGatewayStatus maps the gateway's status vocabulary onto payment statuses.
func ParseGatewayStatus(raw string) (enums.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "initiated", "processing":
		return enums.PaymentStatusProcessing, true
	case "completed", "success", "successful", "paid":
		return enums.PaymentStatusCompleted, true
	case "failed", "declined", "rejected", "expired":
		return enums.PaymentStatusFailed, true
	case "cancelled", "canceled":
		return enums.PaymentStatusCancelled, true
	case "refunded":
		return enums.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// ParseCardStatus maps Square payment statuses onto payment statuses.
func ParseCardStatus(raw string) (enums.PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVED", "PENDING":
		return enums.PaymentStatusProcessing, true
	case "COMPLETED":
		return enums.PaymentStatusCompleted, true
	case "FAILED":
		return enums.PaymentStatusFailed, true
	case "CANCELED":
		return enums.PaymentStatusCancelled, true
	default:
		return "", false
	}
}

func containsStatus(list []enums.PaymentStatus, status enums.PaymentStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

func invalidTransition(from, to enums.PaymentStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStateTransition, fmt.Sprintf("payment cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func publicMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
