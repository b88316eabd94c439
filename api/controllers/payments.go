package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/api/responses"
	"github.com/angelmondragon/escrowpay-backend/api/validators"
	"github.com/angelmondragon/escrowpay-backend/internal/payments"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

type mobileMoneyRequest struct {
	OrderID       string          `json:"order_id" validate:"required,uuid"`
	Amount        decimal.Decimal `json:"amount" validate:"required,amount"`
	Currency      string          `json:"currency" validate:"omitempty,currency"`
	PhoneNumber   string          `json:"phone_number" validate:"required,max=20"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,max=20"`
}

type cardPaymentRequest struct {
	OrderID  string          `json:"order_id" validate:"required,uuid"`
	Amount   decimal.Decimal `json:"amount" validate:"required,amount"`
	Currency string          `json:"currency" validate:"omitempty,currency"`
	SourceID string          `json:"source_id" validate:"required,max=255"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"omitempty,amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

// InitiateMobileMoneyPayment starts a mobile-money collection for the buyer's order.
func InitiateMobileMoneyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req mobileMoneyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var method enums.PaymentMethod
		if raw := strings.TrimSpace(req.PaymentMethod); raw != "" {
			method, err = enums.ParsePaymentMethod(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method"))
				return
			}
		}

		result, err := svc.InitializeMobileMoney(r.Context(), payments.CreateInput{
			OrderID:     uuid.MustParse(req.OrderID),
			BuyerID:     actor.UserID,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Method:      method,
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

// InitiateCardPayment charges a tokenized card for the buyer's order.
func InitiateCardPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cardPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.InitializeCard(r.Context(), payments.CardInput{
			OrderID:  uuid.MustParse(req.OrderID),
			BuyerID:  actor.UserID,
			Amount:   req.Amount,
			Currency: req.Currency,
			SourceID: req.SourceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusAccepted
		if result.Status == enums.PaymentStatusCompleted {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// GetPayment returns a payment to its buyer or an admin.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := pathUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !actor.IsAdmin() && payment.BuyerID != actor.UserID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found"))
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// RefundPayment returns a completed payment to the buyer. Admin only.
func RefundPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := pathUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.RequestRefund(r.Context(), payments.RefundInput{
			PaymentID: paymentID,
			Amount:    req.Amount,
			Reason:    req.Reason,
			ActorID:   actor.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}
