package escrow

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
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// DisputeBridge records the dispute that accompanies a disputed account. Both
// calls run inside the ledger's transaction.
type DisputeBridge interface {
	Open(ctx context.Context, tx *gorm.DB, accountID, openedBy uuid.UUID, reason string) (*models.Dispute, error)
	Resolve(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, decision enums.DisputeDecision, resolvedBy uuid.UUID, notes *string) (*models.Dispute, error)
}

// Service owns the escrow account lifecycle.
type Service interface {
	CreateAccount(ctx context.Context, input CreateAccountInput) (*models.EscrowAccount, error)
	Fund(ctx context.Context, input FundInput) (*models.EscrowAccount, error)
	FundInTx(ctx context.Context, tx *gorm.DB, input FundInput) (*models.EscrowAccount, error)
	Release(ctx context.Context, input SettleInput) (*models.EscrowAccount, error)
	ReleaseInTx(ctx context.Context, tx *gorm.DB, input SettleInput) (*models.EscrowAccount, error)
	Refund(ctx context.Context, input SettleInput) (*models.EscrowAccount, error)
	RefundInTx(ctx context.Context, tx *gorm.DB, input SettleInput) (*models.EscrowAccount, error)
	OpenDispute(ctx context.Context, input OpenDisputeInput) (*DisputeResult, error)
	ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*DisputeResult, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.EscrowAccount, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowAccount, error)
	FindByOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.EscrowAccount, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.EscrowTransaction, error)
}

// Params wires the ledger's collaborators.
type Params struct {
	Repository      Repository
	Tx              txRunner
	Outbox          outboxPublisher
	Disputes        DisputeBridge
	Metrics         *metrics.MoneyMetrics
	Logger          *logger.Logger
	MaxAmount       decimal.Decimal
	DefaultCurrency enums.Currency
}

type service struct {
	repo            Repository
	tx              txRunner
	outbox          outboxPublisher
	disputes        DisputeBridge
	metrics         *metrics.MoneyMetrics
	logg            *logger.Logger
	maxAmount       decimal.Decimal
	defaultCurrency enums.Currency
}

// NewService builds the escrow ledger.
func NewService(params Params) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Disputes == nil {
		return nil, fmt.Errorf("dispute bridge required")
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyTZS
	}
	return &service{
		repo:            params.Repository,
		tx:              params.Tx,
		outbox:          params.Outbox,
		disputes:        params.Disputes,
		metrics:         params.Metrics,
		logg:            params.Logger,
		maxAmount:       params.MaxAmount,
		defaultCurrency: currency,
	}, nil
}

func (s *service) CreateAccount(ctx context.Context, input CreateAccountInput) (*models.EscrowAccount, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if err := money.ValidateAmount("amount", input.Amount, s.maxAmount); err != nil {
		return nil, err
	}
	currency, err := money.ResolveCurrency(input.Currency, s.defaultCurrency)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindAccountByOrder(ctx, input.OrderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow account")
	}

	account := &models.EscrowAccount{
		ID:       uuid.New(),
		OrderID:  input.OrderID,
		BuyerID:  input.BuyerID,
		VendorID: input.VendorID,
		Amount:   input.Amount.Round(money.Scale),
		Currency: currency,
		Status:   enums.EscrowStatusPending,
		Version:  1,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			winner, findErr := s.repo.FindAccountByOrder(ctx, input.OrderID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload escrow account")
			}
			return winner, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow account")
	}

	s.metrics.IncEscrowTransition(string(enums.EscrowStatusPending))
	s.info(ctx, account, "escrow account created")
	return account, nil
}

func (s *service) Fund(ctx context.Context, input FundInput) (*models.EscrowAccount, error) {
	var account *models.EscrowAccount
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		funded, err := s.FundInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		account = funded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// FundInTx moves a pending account to funded. Replaying the same payment
// reference is a no-op so duplicate webhook deliveries are harmless.
func (s *service) FundInTx(ctx context.Context, tx *gorm.DB, input FundInput) (*models.EscrowAccount, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	reference := strings.TrimSpace(input.PaymentReference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	repo := s.repo.WithTx(tx)
	account, err := s.loadAccount(ctx, repo, input.AccountID)
	if err != nil {
		return nil, err
	}
	if fundedBy(account, reference) {
		return account, nil
	}
	if account.Status != enums.EscrowStatusPending {
		return nil, invalidTransition(account.Status, enums.EscrowStatusFunded)
	}
	if !input.PaymentAmount.Equal(account.Amount) {
		return nil, money.Mismatch(account.Amount, input.PaymentAmount)
	}

	now := time.Now().UTC()
	ok, err := repo.TransitionAccount(ctx, account.ID, enums.EscrowStatusPending, account.Version, map[string]any{
		"status":            enums.EscrowStatusFunded,
		"payment_reference": reference,
		"funded_at":         now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fund escrow account")
	}
	if !ok {
		current, err := s.loadAccount(ctx, repo, account.ID)
		if err != nil {
			return nil, err
		}
		if fundedBy(current, reference) {
			return current, nil
		}
		return nil, invalidTransition(current.Status, enums.EscrowStatusFunded)
	}

	account.Status = enums.EscrowStatusFunded
	account.Version++
	account.PaymentReference = &reference
	account.FundedAt = &now

	if err := s.appendTransaction(ctx, repo, account, enums.EscrowTxnDeposit, account.Amount, &reference, nil); err != nil {
		return nil, err
	}
	if err := s.emitEscrowEvent(ctx, tx, enums.EventEscrowFunded, account, &reference, "", uuid.Nil); err != nil {
		return nil, err
	}

	s.metrics.IncEscrowTransition(string(enums.EscrowStatusFunded))
	s.info(ctx, account, "escrow account funded")
	return account, nil
}

func (s *service) Release(ctx context.Context, input SettleInput) (*models.EscrowAccount, error) {
	return s.settle(ctx, input, enums.EscrowStatusReleased)
}

func (s *service) ReleaseInTx(ctx context.Context, tx *gorm.DB, input SettleInput) (*models.EscrowAccount, error) {
	return s.settleInTx(ctx, tx, input, enums.EscrowStatusReleased)
}

func (s *service) Refund(ctx context.Context, input SettleInput) (*models.EscrowAccount, error) {
	return s.settle(ctx, input, enums.EscrowStatusRefunded)
}

func (s *service) RefundInTx(ctx context.Context, tx *gorm.DB, input SettleInput) (*models.EscrowAccount, error) {
	return s.settleInTx(ctx, tx, input, enums.EscrowStatusRefunded)
}

func (s *service) settle(ctx context.Context, input SettleInput, target enums.EscrowStatus) (*models.EscrowAccount, error) {
	var account *models.EscrowAccount
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		settled, err := s.settleInTx(ctx, tx, input, target)
		if err != nil {
			return err
		}
		account = settled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// settleInTx moves the whole escrow amount to the vendor (released) or back to
// the buyer (refunded). Only full-amount settlement is supported.
func (s *service) settleInTx(ctx context.Context, tx *gorm.DB, input SettleInput, target enums.EscrowStatus) (*models.EscrowAccount, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	repo := s.repo.WithTx(tx)
	account, err := s.loadAccount(ctx, repo, input.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status.IsTerminal() {
		return nil, alreadySettled(account)
	}
	if !canSettle(account.Status) {
		return nil, invalidTransition(account.Status, target)
	}

	amount := input.Amount
	if amount.IsZero() {
		amount = account.Amount
	}
	if err := money.ValidateAmount("amount", amount, decimal.Zero); err != nil {
		return nil, err
	}
	if !amount.Equal(account.Amount) {
		return nil, money.Mismatch(account.Amount, amount)
	}

	now := time.Now().UTC()
	updates := map[string]any{"status": target}
	txnType := enums.EscrowTxnRelease
	eventType := enums.EventEscrowReleased
	if target == enums.EscrowStatusRefunded {
		updates["refunded_at"] = now
		txnType = enums.EscrowTxnRefund
		eventType = enums.EventEscrowRefunded
	} else {
		updates["released_at"] = now
	}

	prior := account.Status
	ok, err := repo.TransitionAccount(ctx, account.ID, account.Status, account.Version, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle escrow account")
	}
	if !ok {
		current, err := s.loadAccount(ctx, repo, account.ID)
		if err != nil {
			return nil, err
		}
		if current.Status.IsTerminal() {
			return nil, alreadySettled(current)
		}
		return nil, invalidTransition(current.Status, target)
	}

	account.Status = target
	account.Version++
	if target == enums.EscrowStatusRefunded {
		account.RefundedAt = &now
	} else {
		account.ReleasedAt = &now
	}

	if err := s.appendTransaction(ctx, repo, account, txnType, amount, input.Reference, input.Notes); err != nil {
		return nil, err
	}
	if err := s.emitEscrowEvent(ctx, tx, eventType, account, input.Reference, "", input.ActorID); err != nil {
		return nil, err
	}
	// Settling straight out of disputed closes the dispute with the same outcome.
	if prior == enums.EscrowStatusDisputed {
		decision := enums.DisputeDecisionRelease
		if target == enums.EscrowStatusRefunded {
			decision = enums.DisputeDecisionRefund
		}
		dispute, err := s.disputes.Resolve(ctx, tx, account.ID, decision, input.ActorID, input.Notes)
		if err != nil {
			return nil, err
		}
		if err := s.emitDisputeResolved(ctx, tx, dispute, account, input.ActorID); err != nil {
			return nil, err
		}
	}

	s.metrics.IncEscrowTransition(string(target))
	s.info(ctx, account, "escrow account settled")
	return account, nil
}

func (s *service) OpenDispute(ctx context.Context, input OpenDisputeInput) (*DisputeResult, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.OpenedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason required")
	}

	var result *DisputeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := s.loadAccount(ctx, repo, input.AccountID)
		if err != nil {
			return err
		}
		if account.Status.IsTerminal() {
			return alreadySettled(account)
		}
		if account.Status != enums.EscrowStatusFunded {
			return invalidTransition(account.Status, enums.EscrowStatusDisputed)
		}

		now := time.Now().UTC()
		ok, err := repo.TransitionAccount(ctx, account.ID, enums.EscrowStatusFunded, account.Version, map[string]any{
			"status":      enums.EscrowStatusDisputed,
			"disputed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispute escrow account")
		}
		if !ok {
			return s.conflict(ctx, repo, account.ID, enums.EscrowStatusDisputed)
		}
		account.Status = enums.EscrowStatusDisputed
		account.Version++
		account.DisputedAt = &now

		if err := s.appendTransaction(ctx, repo, account, enums.EscrowTxnDisputeHold, account.Amount, nil, &reason); err != nil {
			return err
		}
		dispute, err := s.disputes.Open(ctx, tx, account.ID, input.OpenedBy, reason)
		if err != nil {
			return err
		}
		if err := s.emitEscrowEvent(ctx, tx, enums.EventEscrowDisputed, account, nil, reason, input.OpenedBy); err != nil {
			return err
		}
		result = &DisputeResult{Account: account, Dispute: dispute}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncEscrowTransition(string(enums.EscrowStatusDisputed))
	s.info(ctx, result.Account, "escrow dispute opened")
	return result, nil
}

// ResolveDispute marks the account resolved and settles it per the decision in
// one transaction, so a resolved account is never observed on its own.
func (s *service) ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*DisputeResult, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.ResolvedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be release or refund")
	}

	var result *DisputeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := s.loadAccount(ctx, repo, input.AccountID)
		if err != nil {
			return err
		}
		if account.Status.IsTerminal() {
			return alreadySettled(account)
		}
		if account.Status != enums.EscrowStatusDisputed {
			return invalidTransition(account.Status, enums.EscrowStatusResolved)
		}

		now := time.Now().UTC()
		ok, err := repo.TransitionAccount(ctx, account.ID, enums.EscrowStatusDisputed, account.Version, map[string]any{
			"status":      enums.EscrowStatusResolved,
			"resolved_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve escrow account")
		}
		if !ok {
			return s.conflict(ctx, repo, account.ID, enums.EscrowStatusResolved)
		}

		dispute, err := s.disputes.Resolve(ctx, tx, account.ID, input.Decision, input.ResolvedBy, input.Notes)
		if err != nil {
			return err
		}

		target := enums.EscrowStatusReleased
		if input.Decision == enums.DisputeDecisionRefund {
			target = enums.EscrowStatusRefunded
		}
		settled, err := s.settleInTx(ctx, tx, SettleInput{
			AccountID: account.ID,
			Amount:    input.Amount,
			ActorID:   input.ResolvedBy,
			Notes:     input.Notes,
		}, target)
		if err != nil {
			return err
		}

		if err := s.emitDisputeResolved(ctx, tx, dispute, settled, input.ResolvedBy); err != nil {
			return err
		}
		result = &DisputeResult{Account: settled, Dispute: dispute}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(ctx, result.Account, "escrow dispute resolved")
	return result, nil
}

func (s *service) emitDisputeResolved(ctx context.Context, tx *gorm.DB, dispute *models.Dispute, account *models.EscrowAccount, resolvedBy uuid.UUID) error {
	var decision enums.DisputeDecision
	if dispute.Decision != nil {
		decision = *dispute.Decision
	}
	occurredAt := time.Now().UTC()
	if dispute.ResolvedAt != nil {
		occurredAt = *dispute.ResolvedAt
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDisputeResolved,
		AggregateType: enums.AggregateEscrowAccount,
		AggregateID:   account.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: resolvedBy, Role: "admin"},
		Data: payloads.DisputeResolvedEvent{
			DisputeID:  dispute.ID,
			AccountID:  account.ID,
			OrderID:    account.OrderID,
			BuyerID:    account.BuyerID,
			VendorID:   account.VendorID,
			Decision:   decision,
			Amount:     account.Amount,
			Currency:   account.Currency,
			ResolvedBy: resolvedBy,
			OccurredAt: occurredAt,
		},
	})
}

func (s *service) GetAccount(ctx context.Context, id uuid.UUID) (*models.EscrowAccount, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	return s.loadAccount(ctx, s.repo, id)
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowAccount, error) {
	return s.FindByOrderInTx(ctx, nil, orderID)
}

func (s *service) FindByOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.EscrowAccount, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	account, err := s.repo.WithTx(tx).FindAccountByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow account")
	}
	return account, nil
}

func (s *service) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.EscrowTransaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	txns, err := s.repo.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list escrow transactions")
	}
	return txns, nil
}

func (s *service) loadAccount(ctx context.Context, repo Repository, id uuid.UUID) (*models.EscrowAccount, error) {
	account, err := repo.FindAccount(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow account")
	}
	return account, nil
}

// conflict re-reads the account after a lost conditional update and reports why.
func (s *service) conflict(ctx context.Context, repo Repository, id uuid.UUID, target enums.EscrowStatus) error {
	current, err := s.loadAccount(ctx, repo, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return alreadySettled(current)
	}
	return invalidTransition(current.Status, target)
}

func (s *service) appendTransaction(ctx context.Context, repo Repository, account *models.EscrowAccount, txnType enums.EscrowTransactionType, amount decimal.Decimal, reference, notes *string) error {
	txn := &models.EscrowTransaction{
		ID:        uuid.New(),
		AccountID: account.ID,
		Type:      txnType,
		Amount:    amount,
		Currency:  account.Currency,
		Reference: reference,
		Notes:     notes,
	}
	if err := repo.AppendTransaction(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append escrow transaction")
	}
	return nil
}

func (s *service) emitEscrowEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, account *models.EscrowAccount, reference *string, reason string, actorID uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEscrowAccount,
		AggregateID:   account.ID,
		Version:       1,
		Data: payloads.EscrowEvent{
			AccountID:  account.ID,
			OrderID:    account.OrderID,
			BuyerID:    account.BuyerID,
			VendorID:   account.VendorID,
			Status:     account.Status,
			Amount:     account.Amount,
			Currency:   account.Currency,
			Reference:  reference,
			Reason:     reason,
			OccurredAt: time.Now().UTC(),
		},
	}
	if actorID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actorID}
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) info(ctx context.Context, account *models.EscrowAccount, msg string) {
	if s.logg == nil || account == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"account_id": account.ID.String(),
		"order_id":   account.OrderID.String(),
		"status":     account.Status,
		"amount":     account.Amount.StringFixed(money.Scale),
		"currency":   account.Currency,
	})
	s.logg.Info(logCtx, msg)
}

func fundedBy(account *models.EscrowAccount, reference string) bool {
	return account.Status != enums.EscrowStatusPending &&
		account.PaymentReference != nil &&
		*account.PaymentReference == reference
}

func canSettle(status enums.EscrowStatus) bool {
	switch status {
	case enums.EscrowStatusFunded, enums.EscrowStatusDisputed, enums.EscrowStatusResolved:
		return true
	default:
		return false
	}
}

func invalidTransition(from, to enums.EscrowStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStateTransition, fmt.Sprintf("escrow account cannot move from %s to %s", from, to)).WithDetails(map[string]any{
		"from": from,
		"to":   to,
	})
}

func alreadySettled(account *models.EscrowAccount) error {
	return pkgerrors.New(pkgerrors.CodeAlreadySettled, fmt.Sprintf("escrow account already %s", account.Status)).WithDetails(map[string]any{
		"account_id": account.ID,
		"status":     account.Status,
	})
}
