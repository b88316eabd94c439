package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/escrowpay-backend/api/responses"
	"github.com/angelmondragon/escrowpay-backend/internal/payments"
	"github.com/angelmondragon/escrowpay-backend/internal/webhooks"
	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const (
	paymentSignatureHeader = "X-Webhook-Signature"
	paymentTimestampHeader = "X-Webhook-Timestamp"
	paymentSource          = "payments"
	maxWebhookBody         = 1 << 20
)

// PaymentStatusUpdater applies gateway-reported payment statuses.
type PaymentStatusUpdater interface {
	UpdateStatusByReference(ctx context.Context, reference string, status enums.PaymentStatus, paidAt *time.Time) (*models.Payment, error)
}

type paymentWebhookBody struct {
	TransactionID string     `json:"transactionId"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paidAt"`
}

// PaymentGatewayWebhook handles mobile money status callbacks. The signature
// covers "<timestamp>.<body>"; requests whose signature or timestamp does not
// verify are rejected before the body is parsed.
func PaymentGatewayWebhook(svc PaymentStatusUpdater, cfg config.WebhookConfig, guard DeliveryGuard, rejections RejectionRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		timestamp := r.Header.Get(paymentTimestampHeader)
		if !webhooks.VerifyTimestampedSignature(timestamp, body, r.Header.Get(paymentSignatureHeader), cfg.PaymentSecret) {
			reject(w, r, logg, rejections, paymentSource, "signature")
			return
		}
		if !webhooks.VerifyTimestamp(timestamp, cfg.TimestampTolerance) {
			reject(w, r, logg, rejections, paymentSource, "timestamp")
			return
		}

		var event paymentWebhookBody
		if err := json.Unmarshal(body, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook body"))
			return
		}
		event.TransactionID = strings.TrimSpace(event.TransactionID)
		if event.TransactionID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transactionId is required"))
			return
		}
		status, ok := payments.ParseGatewayStatus(event.Status)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status").
				WithDetails(map[string]any{"status": event.Status}))
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"transaction_id": event.TransactionID,
			"gateway_status": status,
		})
		deliveryID := event.TransactionID + ":" + string(status)
		seen, err := guard.CheckAndMark(ctx, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook replay"))
			return
		}
		if seen {
			logg.Info(ctx, "payment webhook replay ignored")
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if _, err := svc.UpdateStatusByReference(ctx, event.TransactionID, status, event.PaidAt); err != nil {
			if acknowledged(err) {
				if paidButUnsettled(status, err) {
					logg.Critical(ctx, "payment webhook reports paid but payment cannot settle", err)
				} else {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "payment webhook acknowledged without update")
				}
				responses.WriteSuccess(w, map[string]bool{"received": true})
				return
			}
			_ = guard.Delete(ctx, deliveryID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(ctx, "payment webhook processed")
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
