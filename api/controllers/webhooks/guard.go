package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/escrowpay-backend/api/responses"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

// DeliveryGuard suppresses duplicate deliveries. internal/webhooks.ReplayGuard
// satisfies it.
type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type RejectionRecorder interface {
	IncWebhookRejected(source, reason string)
}

func reject(w http.ResponseWriter, r *http.Request, logg *logger.Logger, rejections RejectionRecorder, source, reason string) {
	ctx := logg.WithField(r.Context(), "webhook_source", source)
	logg.Security(ctx, "webhook.rejected", reason)
	if rejections != nil {
		rejections.IncWebhookRejected(source, reason)
	}
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature invalid"))
}

// acknowledged reports whether a processing error means the event is stale
// rather than failed. Providers retry anything that is not a 2xx.
func acknowledged(err error) bool {
	return pkgerrors.Is(err, pkgerrors.CodeNotFound) || pkgerrors.Is(err, pkgerrors.CodeInvalidStateTransition)
}

// paidButUnsettled reports a provider capture against a payment that already
// reached failed or cancelled. The money moved but nothing will credit it.
func paidButUnsettled(status enums.PaymentStatus, err error) bool {
	return status == enums.PaymentStatusCompleted && pkgerrors.Is(err, pkgerrors.CodeInvalidStateTransition)
}
