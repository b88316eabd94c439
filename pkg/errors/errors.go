package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInProgress    Code = "REQUEST_IN_PROGRESS"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeAlreadySettled         Code = "ALREADY_SETTLED"
	CodeAmountMismatch         Code = "AMOUNT_MISMATCH"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeBelowMinimum           Code = "BELOW_MINIMUM"
	CodeNotPending             Code = "NOT_PENDING"
	CodeGateway                Code = "GATEWAY_ERROR"
	CodeGatewayTimeout         Code = "GATEWAY_TIMEOUT"
	CodeSignatureInvalid       Code = "SIGNATURE_INVALID"
)

// Metadata is how a code surfaces over HTTP. Retryable tells clients whether
// the same request may be sent again; DetailsAllowed gates Error.Details.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeInProgress:    {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "request already in progress"},
	CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
	CodeInternal:      {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},

	// Money movement.
	CodeInvalidStateTransition: {HTTPStatus: http.StatusConflict, PublicMessage: "operation not allowed in the current state", DetailsAllowed: true},
	CodeAlreadySettled:         {HTTPStatus: http.StatusConflict, PublicMessage: "escrow already settled", DetailsAllowed: true},
	CodeAmountMismatch:         {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "amount does not match", DetailsAllowed: true},
	CodeInsufficientBalance:    {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient balance", DetailsAllowed: true},
	CodeBelowMinimum:           {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "amount below minimum", DetailsAllowed: true},
	CodeNotPending:             {HTTPStatus: http.StatusConflict, PublicMessage: "request is no longer pending"},
	CodeGateway:                {HTTPStatus: http.StatusBadGateway, PublicMessage: "payment provider rejected the request", DetailsAllowed: true},
	CodeGatewayTimeout:         {HTTPStatus: http.StatusGatewayTimeout, Retryable: true, PublicMessage: "payment provider timed out"},
	CodeSignatureInvalid:       {HTTPStatus: http.StatusUnauthorized, PublicMessage: "invalid signature"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
