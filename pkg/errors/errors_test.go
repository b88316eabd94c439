package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryCodeHasMetadata(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeConflict,
		CodeStateConflict, CodeIdempotency, CodeInProgress, CodeRateLimit, CodeInternal,
		CodeDependency, CodeInvalidStateTransition, CodeAlreadySettled, CodeAmountMismatch,
		CodeInsufficientBalance, CodeBelowMinimum, CodeNotPending, CodeGateway,
		CodeGatewayTimeout, CodeSignatureInvalid,
	}
	for _, code := range codes {
		meta, ok := metadataByCode[code]
		require.True(t, ok, code)
		assert.NotZero(t, meta.HTTPStatus, code)
		assert.NotEmpty(t, meta.PublicMessage, code)
	}
}

func TestMetadataForMoneyCodes(t *testing.T) {
	tests := map[Code]Metadata{
		CodeInvalidStateTransition: {HTTPStatus: http.StatusConflict, PublicMessage: "operation not allowed in the current state", DetailsAllowed: true},
		CodeAlreadySettled:         {HTTPStatus: http.StatusConflict, PublicMessage: "escrow already settled", DetailsAllowed: true},
		CodeInsufficientBalance:    {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient balance", DetailsAllowed: true},
		CodeGatewayTimeout:         {HTTPStatus: http.StatusGatewayTimeout, Retryable: true, PublicMessage: "payment provider timed out"},
		CodeInProgress:             {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "request already in progress"},
		CodeDependency:             {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	}
	for code, want := range tests {
		assert.Equal(t, want, MetadataFor(code), code)
	}
}

func TestMetadataForUnknownCodeIsInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestConstructorsKeepCodeMessageAndCause(t *testing.T) {
	base := New(CodeValidation, "amount required")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "amount required", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: amount required", base.Error())

	base.WithDetails(map[string]string{"amount": "required"})
	assert.Equal(t, map[string]string{"amount": "required"}, base.Details())

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeGateway, cause, "initiate payment")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeGateway, wrapped.Code())

	assert.Nil(t, Wrap(CodeInternal, nil, "nothing").Unwrap())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.WithDetails("x"))
	assert.Empty(t, e.Error())
}

func TestAsAndIsWalkTheChain(t *testing.T) {
	inner := New(CodeAlreadySettled, "escrow released")
	outer := fmt.Errorf("refund: %w", inner)

	got := As(outer)
	require.NotNil(t, got)
	assert.Same(t, inner, got)
	assert.True(t, Is(outer, CodeAlreadySettled))
	assert.False(t, Is(outer, CodeNotFound))

	assert.Nil(t, As(nil))
	assert.False(t, Is(stdErrors.New("plain"), CodeInternal))
}
