package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/types"
)

const requestIDHeader = "X-Request-Id"

// publicMessages lists the codes whose own message is safe to show callers.
// Every other code answers with its generic public message.
var publicMessages = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:             true,
	pkgerrors.CodeForbidden:              true,
	pkgerrors.CodeUnauthorized:           true,
	pkgerrors.CodeNotFound:               true,
	pkgerrors.CodeConflict:               true,
	pkgerrors.CodeStateConflict:          true,
	pkgerrors.CodeIdempotency:            true,
	pkgerrors.CodeInProgress:             true,
	pkgerrors.CodeRateLimit:              true,
	pkgerrors.CodeInvalidStateTransition: true,
	pkgerrors.CodeAlreadySettled:         true,
	pkgerrors.CodeAmountMismatch:         true,
	pkgerrors.CodeInsufficientBalance:    true,
	pkgerrors.CodeBelowMinimum:           true,
	pkgerrors.CodeGateway:                true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps err onto the public envelope. Untyped errors become
// INTERNAL_ERROR. Server faults log at error level and client faults at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
		RequestID: w.Header().Get(requestIDHeader),
	}
	if m := typed.Message(); m != "" && publicMessages[typed.Code()] {
		apiErr.Message = m
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	logFailure(ctx, logg, meta.HTTPStatus, typed, err)
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

func logFailure(ctx context.Context, logg *logger.Logger, status int, typed *pkgerrors.Error, err error) {
	if logg == nil {
		return
	}
	fields := pkgerrors.Diagnose(err).Fields()
	fields["status"] = status
	if details, ok := typed.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(logg.WithField(ctx, "error", err.Error()), "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure here only means the
	// client went away.
	_ = json.NewEncoder(w).Encode(payload)
}
