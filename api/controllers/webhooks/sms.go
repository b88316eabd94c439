package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/escrowpay-backend/api/responses"
	"github.com/angelmondragon/escrowpay-backend/internal/webhooks"
	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const (
	smsSignatureHeader = "X-Sms-Signature"
	smsSource          = "sms"
)

// SMSStatusUpdater records delivery reports against notifications.
type SMSStatusUpdater interface {
	UpdateSMSStatus(ctx context.Context, sid, providerStatus string) error
}

// SMSDeliveryWebhook handles form-encoded delivery reports from the SMS provider.
func SMSDeliveryWebhook(svc SMSStatusUpdater, cfg config.WebhookConfig, rejections RejectionRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sms webhook unavailable"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		if err := r.ParseForm(); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid form body"))
			return
		}

		if !webhooks.VerifySMSSignature(cfg.SMSCallbackURL, r.PostForm, r.Header.Get(smsSignatureHeader), cfg.SMSAuthToken) {
			reject(w, r, logg, rejections, smsSource, "signature")
			return
		}

		sid := strings.TrimSpace(r.PostForm.Get("MessageSid"))
		status := r.PostForm.Get("MessageStatus")
		ctx = logg.WithFields(ctx, map[string]any{
			"message_sid": sid,
			"sms_status":  status,
		})

		if err := svc.UpdateSMSStatus(ctx, sid, status); err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				logg.Warn(ctx, "sms delivery report for unknown message")
				responses.WriteSuccess(w, map[string]bool{"received": true})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
