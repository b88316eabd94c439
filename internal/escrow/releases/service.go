package releases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/internal/escrow"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/money"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger is the slice of the escrow ledger the workflow drives.
type Ledger interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.EscrowAccount, error)
	ReleaseInTx(ctx context.Context, tx *gorm.DB, input escrow.SettleInput) (*models.EscrowAccount, error)
}

// Service manages approval of escrow release requests.
type Service interface {
	RequestRelease(ctx context.Context, input RequestInput) (*models.EscrowRelease, error)
	Approve(ctx context.Context, releaseID, approverID uuid.UUID) (*ApprovalResult, error)
	Reject(ctx context.Context, releaseID, approverID uuid.UUID, reason string) (*models.EscrowRelease, error)
	Get(ctx context.Context, releaseID uuid.UUID) (*models.EscrowRelease, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.EscrowRelease, error)
}

// RequestInput asks for the escrowed funds to go to the vendor. A zero Amount
// means the full escrow amount.
type RequestInput struct {
	AccountID   uuid.UUID
	RequesterID uuid.UUID
	Amount      decimal.Decimal
	Reason      string
}

// ApprovalResult carries the approved release and the account it settled.
type ApprovalResult struct {
	Release *models.EscrowRelease `json:"release"`
	Account *models.EscrowAccount `json:"account"`
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger Ledger
	logg   *logger.Logger
}

// NewService wires the release workflow.
func NewService(repo Repository, tx txRunner, ledger Ledger, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("release repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("escrow ledger required")
	}
	return &service{repo: repo, tx: tx, ledger: ledger, logg: logg}, nil
}

func (s *service) RequestRelease(ctx context.Context, input RequestInput) (*models.EscrowRelease, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	account, err := s.ledger.GetAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, fmt.Sprintf("escrow account already %s", account.Status))
	}
	if account.Status != enums.EscrowStatusFunded && account.Status != enums.EscrowStatusDisputed {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidStateTransition, fmt.Sprintf("cannot request release while escrow is %s", account.Status))
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

	release := &models.EscrowRelease{
		ID:          uuid.New(),
		AccountID:   account.ID,
		RequesterID: input.RequesterID,
		Amount:      amount,
		Status:      enums.ReleaseStatusPending,
		Reason:      optionalString(input.Reason),
		RequestedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, release); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow release")
	}
	return release, nil
}

// Approve marks the release approved and releases the escrow in the same
// transaction. A ledger failure rolls the approval back.
func (s *service) Approve(ctx context.Context, releaseID, approverID uuid.UUID) (*ApprovalResult, error) {
	if releaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release id required")
	}
	if approverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *ApprovalResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		release, err := s.load(ctx, repo, releaseID)
		if err != nil {
			return err
		}
		if release.Status != enums.ReleaseStatusPending {
			return notPending(release)
		}

		now := time.Now().UTC()
		ok, err := repo.Decide(ctx, release.ID, enums.ReleaseStatusApproved, map[string]any{
			"approver_id": approverID,
			"approved_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve escrow release")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotPending, "release is no longer pending")
		}
		release.Status = enums.ReleaseStatusApproved
		release.ApproverID = &approverID
		release.ApprovedAt = &now

		reference := release.ID.String()
		account, err := s.ledger.ReleaseInTx(ctx, tx, escrow.SettleInput{
			AccountID: release.AccountID,
			Amount:    release.Amount,
			ActorID:   approverID,
			Reference: &reference,
			Notes:     release.Reason,
		})
		if err != nil {
			return err
		}
		result = &ApprovalResult{Release: release, Account: account}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil || pkgerrors.Is(err, pkgerrors.CodeDependency) {
			s.critical(ctx, releaseID, "escrow release approval rolled back", err)
		}
		return nil, err
	}
	return result, nil
}

func (s *service) Reject(ctx context.Context, releaseID, approverID uuid.UUID, reason string) (*models.EscrowRelease, error) {
	if releaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release id required")
	}
	if approverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	release, err := s.load(ctx, s.repo, releaseID)
	if err != nil {
		return nil, err
	}
	if release.Status != enums.ReleaseStatusPending {
		return nil, notPending(release)
	}

	now := time.Now().UTC()
	ok, err := s.repo.Decide(ctx, release.ID, enums.ReleaseStatusRejected, map[string]any{
		"approver_id":      approverID,
		"rejection_reason": reason,
		"rejected_at":      now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject escrow release")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotPending, "release is no longer pending")
	}
	release.Status = enums.ReleaseStatusRejected
	release.ApproverID = &approverID
	release.RejectionReason = &reason
	release.RejectedAt = &now
	return release, nil
}

func (s *service) Get(ctx context.Context, releaseID uuid.UUID) (*models.EscrowRelease, error) {
	if releaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release id required")
	}
	return s.load(ctx, s.repo, releaseID)
}

func (s *service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.EscrowRelease, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	releases, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list escrow releases")
	}
	return releases, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.EscrowRelease, error) {
	release, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "release not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow release")
	}
	return release, nil
}

func (s *service) critical(ctx context.Context, releaseID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Critical(s.logg.WithField(ctx, "release_id", releaseID.String()), msg, err)
}

func notPending(release *models.EscrowRelease) error {
	return pkgerrors.New(pkgerrors.CodeNotPending, fmt.Sprintf("release is %s", release.Status))
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
