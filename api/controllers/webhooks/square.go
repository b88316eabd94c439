package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/escrowpay-backend/api/responses"
	"github.com/angelmondragon/escrowpay-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/escrowpay-backend/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const (
	squareSignatureHeader = "x-square-hmacsha256-signature"
	squareSource          = "square"
)

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

type SquareSigner interface {
	SignatureKey() string
	NotificationURL() string
}

// SquareWebhook handles Square card payment events.
func SquareWebhook(svc SquareWebhookService, client SquareSigner, guard DeliveryGuard, rejections RejectionRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !webhooks.VerifySquareSignature(client.NotificationURL(), payload, r.Header.Get(squareSignatureHeader), client.SignatureKey()) {
			reject(w, r, logg, rejections, squareSource, "signature")
			return
		}

		var event squarewebhook.SquareWebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			eventID = event.Data.ID
		}
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id is required"))
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"square_event_id":   eventID,
			"square_event_type": event.Type,
		})

		seen, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook replay"))
			return
		}
		if seen {
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(ctx, "square event processed")
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
