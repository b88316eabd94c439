package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/api/responses"
	"github.com/angelmondragon/escrowpay-backend/api/validators"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow/releases"
	internalorders "github.com/angelmondragon/escrowpay-backend/internal/orders"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

type createEscrowRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

type releaseRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"omitempty,amount"`
	Reason string          `json:"reason" validate:"max=500"`
}

type rejectReleaseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type openDisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type resolveDisputeRequest struct {
	Decision string          `json:"decision" validate:"required,oneof=release refund"`
	Amount   decimal.Decimal `json:"amount" validate:"omitempty,amount"`
	Notes    string          `json:"notes" validate:"max=1000"`
}

// CreateEscrowAccount opens the escrow account for an order. Calling it again
// for the same order returns the existing account.
func CreateEscrowAccount(svc escrow.Service, orderSvc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || orderSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createEscrowRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := orderSvc.Get(r.Context(), uuid.MustParse(req.OrderID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !actor.IsAdmin() && order.BuyerID != actor.UserID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		account, err := svc.CreateAccount(r.Context(), escrow.CreateAccountInput{
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			VendorID: order.VendorID,
			Amount:   order.TotalAmount,
			Currency: string(order.Currency),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, account)
	}
}

// GetEscrowAccount returns an escrow account to one of its parties.
func GetEscrowAccount(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		account, ok := loadVisibleAccount(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// GetEscrowByOrder returns the escrow account backing an order.
func GetEscrowByOrder(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.GetByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !canView(actor, account.BuyerID, account.VendorID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "escrow account not found"))
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// ListEscrowTransactions returns the account's journal, oldest first.
func ListEscrowTransactions(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		account, ok := loadVisibleAccount(w, r, svc, logg)
		if !ok {
			return
		}

		txns, err := svc.ListTransactions(r.Context(), account.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transactions": txns})
	}
}

// RequestEscrowRelease asks for the held funds to go to the vendor.
func RequestEscrowRelease(svc releases.Service, ledger escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "release service unavailable"))
			return
		}
		account, ok := loadVisibleAccount(w, r, ledger, logg)
		if !ok {
			return
		}
		actor, _ := requireActor(r)

		var req releaseRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		release, err := svc.RequestRelease(r.Context(), releases.RequestInput{
			AccountID:   account.ID,
			RequesterID: actor.UserID,
			Amount:      req.Amount,
			Reason:      validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, release)
	}
}

// ListEscrowReleases returns the release requests filed against an account.
func ListEscrowReleases(svc releases.Service, ledger escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "release service unavailable"))
			return
		}
		account, ok := loadVisibleAccount(w, r, ledger, logg)
		if !ok {
			return
		}

		list, err := svc.ListByAccount(r.Context(), account.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"releases": list})
	}
}

// ApproveEscrowRelease approves a pending release and settles the escrow. Admin only.
func ApproveEscrowRelease(svc releases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "release service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		releaseID, err := pathUUID(r, "releaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Approve(r.Context(), releaseID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RejectEscrowRelease rejects a pending release; the escrow stays funded. Admin only.
func RejectEscrowRelease(svc releases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "release service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		releaseID, err := pathUUID(r, "releaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rejectReleaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		release, err := svc.Reject(r.Context(), releaseID, actor.UserID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, release)
	}
}

// OpenEscrowDispute freezes a funded account pending review.
func OpenEscrowDispute(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		account, ok := loadVisibleAccount(w, r, svc, logg)
		if !ok {
			return
		}
		actor, _ := requireActor(r)

		var req openDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.OpenDispute(r.Context(), escrow.OpenDisputeInput{
			AccountID: account.ID,
			OpenedBy:  actor.UserID,
			Reason:    req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ResolveEscrowDispute settles a disputed account for one party. Admin only.
func ResolveEscrowDispute(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accountID, err := pathUUID(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := enums.ParseDisputeDecision(req.Decision)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision"))
			return
		}

		input := escrow.ResolveDisputeInput{
			AccountID:  accountID,
			ResolvedBy: actor.UserID,
			Decision:   decision,
			Amount:     req.Amount,
		}
		if notes := validators.SanitizeString(req.Notes, 1000); notes != "" {
			input.Notes = &notes
		}

		result, err := svc.ResolveDispute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// loadVisibleAccount resolves {accountId} and hides accounts the caller is not party to.
func loadVisibleAccount(w http.ResponseWriter, r *http.Request, svc escrow.Service, logg *logger.Logger) (*models.EscrowAccount, bool) {
	actor, err := requireActor(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	accountID, err := pathUUID(r, "accountId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	account, err := svc.GetAccount(r.Context(), accountID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if !canView(actor, account.BuyerID, account.VendorID) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "escrow account not found"))
		return nil, false
	}
	return account, true
}
