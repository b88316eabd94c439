package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// Client is the card rail: it charges and refunds through Square and maps
// Square failures onto the domain error codes.
type Client struct {
	sdk          *sqclient.Client
	locationID   string
	signatureKey string
	notifyURL    string
	logg         *logger.Logger
}

// NewClient validates the Square credentials and builds the SDK client.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = "sandbox"
	}
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be sandbox or production, got %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errors.New("square location id is required")
	}

	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return &Client{
		sdk:          sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)),
		locationID:   locationID,
		signatureKey: strings.TrimSpace(cfg.WebhookSignatureKey),
		notifyURL:    strings.TrimSpace(cfg.WebhookURL),
		logg:         logg,
	}, nil
}

// SignatureKey is the key Square signs webhook deliveries with.
func (c *Client) SignatureKey() string {
	if c == nil {
		return ""
	}
	return c.signatureKey
}

// NotificationURL is the webhook URL Square signs alongside the body.
func (c *Client) NotificationURL() string {
	if c == nil {
		return ""
	}
	return c.notifyURL
}

// CreatePayment charges a card nonce against the configured location unless
// params names another one.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	req := params.toSquareRequest(idempotencyKey("payment", params.IdempotencyKey))
	return call(ctx, c, "create_payment", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount_minor": params.AmountCents,
		"source_token": params.SourceID,
	}, func(ctx context.Context) (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
}

// GetPayment fetches the current state of a Square payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return call(ctx, c, "get_payment", map[string]any{"square_payment_id": paymentID},
		func(ctx context.Context) (*sq.Payment, error) {
			resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
			if err != nil {
				return nil, err
			}
			return resp.GetPayment(), nil
		})
}

// RefundPayment refunds part or all of a completed Square payment.
func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (*Refund, error) {
	req := params.toSquareRequest(idempotencyKey("refund", params.IdempotencyKey))
	return call(ctx, c, "refund_payment", map[string]any{
		"square_payment_id": params.PaymentID,
		"amount_minor":      params.AmountCents,
	}, func(ctx context.Context) (*Refund, error) {
		resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
		if err != nil {
			return nil, err
		}
		refund := resp.GetRefund()
		if refund == nil {
			return nil, pkgerrors.New(pkgerrors.CodeGateway, "square refund response missing refund")
		}
		return &Refund{ID: refund.GetID(), Status: deref(refund.GetStatus())}, nil
	})
}

// call runs one SDK request, logging the outcome and mapping failures.
func call[T any](ctx context.Context, c *Client, op string, fields map[string]any, fn func(context.Context) (T, error)) (T, error) {
	logCtx := ctx
	if c.logg != nil {
		logFields := map[string]any{"square_op": op}
		for k, v := range fields {
			logFields[k] = redactField(k, v)
		}
		logCtx = c.logg.WithFields(ctx, logFields)
	}

	resp, err := fn(ctx)
	if err != nil {
		mapped := mapSquareError(err, op)
		if c.logg != nil {
			c.logg.Error(logCtx, "square call failed", mapped)
		}
		var zero T
		return zero, mapped
	}
	if c.logg != nil {
		c.logg.Info(logCtx, "square call succeeded")
	}
	return resp, nil
}

func idempotencyKey(kind, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return "escrowpay-" + kind + "-" + uuid.NewString()
}

var sensitiveFields = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"}

func redactField(key string, value any) any {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveFields {
		if strings.Contains(lower, marker) {
			return "[REDACTED]"
		}
	}
	return value
}

var codeByStatus = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
	http.StatusRequestTimeout:      pkgerrors.CodeGatewayTimeout,
	http.StatusGatewayTimeout:      pkgerrors.CodeGatewayTimeout,
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := codeByStatus[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

// mapSquareError picks a domain code from the HTTP status, then lets the
// first decisive Square error in the body override it.
func mapSquareError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	msg := "square " + strings.ReplaceAll(op, "_", " ") + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}

	code := codeForStatus(apiErr.StatusCode)
	for _, sqErr := range squareErrors(apiErr) {
		if override, ok := codeForSquareError(sqErr); ok {
			code = override
			break
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

// paymentMethodError is the category Square uses for declined or unusable cards.
const paymentMethodError sq.ErrorCategory = "PAYMENT_METHOD_ERROR"

func codeForSquareError(sqErr *sq.Error) (pkgerrors.Code, bool) {
	switch {
	case sqErr == nil:
		return "", false
	case sqErr.Code == sq.ErrorCodeIdempotencyKeyReused:
		return pkgerrors.CodeIdempotency, true
	case sqErr.Category == sq.ErrorCategoryAuthenticationError:
		return pkgerrors.CodeUnauthorized, true
	case sqErr.Category == paymentMethodError:
		return pkgerrors.CodeGateway, true
	}
	return "", false
}

// squareErrors decodes the error list Square puts in the response body.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	return body.Errors
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
