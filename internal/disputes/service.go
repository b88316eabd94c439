package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/escrowpay-backend/pkg/db"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

// Service opens and closes the dispute record that mirrors a disputed escrow
// account. Dispute messaging lives elsewhere.
type Service interface {
	Open(ctx context.Context, tx *gorm.DB, accountID, openedBy uuid.UUID, reason string) (*models.Dispute, error)
	Resolve(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, decision enums.DisputeDecision, resolvedBy uuid.UUID, notes *string) (*models.Dispute, error)
	Get(ctx context.Context, accountID uuid.UUID) (*models.Dispute, error)
}

type service struct {
	repo Repository
}

// NewService wires the dispute bridge with its repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dispute repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Open(ctx context.Context, tx *gorm.DB, accountID, openedBy uuid.UUID, reason string) (*models.Dispute, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason required")
	}

	repo := s.repo.WithTx(tx)
	if _, err := repo.FindOpenByAccount(ctx, accountID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "dispute already open for account")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open dispute")
	}

	dispute := &models.Dispute{
		ID:        uuid.New(),
		AccountID: accountID,
		OpenedBy:  openedBy,
		Reason:    reason,
		Status:    enums.DisputeStatusOpen,
		OpenedAt:  time.Now().UTC(),
	}
	if err := repo.Create(ctx, dispute); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_disputes_open_account") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "dispute already open for account")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
	}
	return dispute, nil
}

func (s *service) Resolve(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, decision enums.DisputeDecision, resolvedBy uuid.UUID, notes *string) (*models.Dispute, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if !decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be release or refund")
	}

	repo := s.repo.WithTx(tx)
	dispute, err := repo.FindOpenByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no open dispute for account")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open dispute")
	}

	now := time.Now().UTC()
	ok, err := repo.MarkResolved(ctx, dispute.ID, map[string]any{
		"decision":         decision,
		"resolved_by":      resolvedBy,
		"resolution_notes": notes,
		"resolved_at":      now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve dispute")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidStateTransition, "dispute is no longer open")
	}

	dispute.Status = enums.DisputeStatusResolved
	dispute.Decision = &decision
	dispute.ResolvedBy = &resolvedBy
	dispute.ResolutionNotes = notes
	dispute.ResolvedAt = &now
	return dispute, nil
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID) (*models.Dispute, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	dispute, err := s.repo.FindLatestByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	return dispute, nil
}
