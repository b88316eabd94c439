// Package gateway talks to the mobile-money payment gateway. Every call carries
// a hard timeout; only status lookups are retried.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/metrics"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryBackoff  = 200 * time.Millisecond
	defaultMaxBackoff    = 5 * time.Second
	defaultMaxRetries    = 3
	errorBodyReadLimit   = 4096
	operationInitiate    = "initiate_payment"
	operationRefund      = "refund"
	operationStatus      = "get_status"
	retryJitterPercent   = 20
	responseBodyMaxBytes = 1 << 20
	idempotencyHeader    = "Idempotency-Key"
)

// InitiateRequest is the payload for POST /payments.
type InitiateRequest struct {
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"paymentMethod"`
	PhoneNumber   string            `json:"phoneNumber,omitempty"`
	Reference     string            `json:"reference"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// InitiateResponse is the gateway's acknowledgement of a payment request.
type InitiateResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ExpiresIn     int    `json:"expiresIn"`
}

// RefundRequest is the payload for POST /payments/{id}/refunds.
type RefundRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Reference string          `json:"reference"`
	// IdempotencyKey is sent as the Idempotency-Key header, not in the body.
	IdempotencyKey string `json:"-"`
}

// RefundResponse acknowledges a refund.
type RefundResponse struct {
	RefundID string `json:"refundId"`
	Status   string `json:"status"`
}

// StatusResponse reports where the gateway thinks a transaction is.
type StatusResponse struct {
	TransactionID string     `json:"transactionId"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

// ProviderError is the body the gateway returns on failure.
type ProviderError struct {
	Message    string `json:"message"`
	Code       string `json:"code"`
	HTTPStatus int    `json:"httpStatus"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gateway status %d: %s (%s)", e.HTTPStatus, e.Message, e.Code)
}

func (e *ProviderError) retryable() bool {
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= http.StatusInternalServerError
}

// Client is the retrying gateway client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	merchantID  string
	callbackURL string
	timeout     time.Duration
	maxRetries  uint64
	backoff     time.Duration
	maxBackoff  time.Duration
	metrics     *metrics.MoneyMetrics
	configured  bool
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMetrics records gateway latency and outcomes.
func WithMetrics(m *metrics.MoneyMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient validates cfg and builds a client. An empty configuration yields an
// unconfigured client whose calls fail with a dependency error; callers decide
// whether to simulate.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	client := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		merchantID:  strings.TrimSpace(cfg.MerchantID),
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.RetryBackoff,
		maxBackoff:  cfg.MaxBackoff,
		configured:  cfg.Configured(),
	}
	if client.baseURL != "" {
		parsed, err := url.Parse(client.baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid gateway base url %q", cfg.BaseURL)
		}
	}
	if client.timeout <= 0 {
		client.timeout = defaultTimeout
	}
	if client.backoff <= 0 {
		client.backoff = defaultRetryBackoff
	}
	if client.maxBackoff <= 0 {
		client.maxBackoff = defaultMaxBackoff
	}
	if client.maxRetries == 0 {
		client.maxRetries = defaultMaxRetries
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	return client, nil
}

// Configured reports whether the gateway credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.configured
}

// InitiatePayment asks the gateway to collect a payment. Never retried.
func (c *Client) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	body := struct {
		MerchantID  string `json:"merchantId"`
		CallbackURL string `json:"callbackUrl,omitempty"`
		InitiateRequest
	}{MerchantID: c.merchantID, CallbackURL: c.callbackURL, InitiateRequest: req}

	var out InitiateResponse
	if err := c.call(ctx, operationInitiate, http.MethodPost, "/payments", "", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway response missing transaction id")
	}
	return &out, nil
}

// Refund returns funds for a completed transaction. Never retried.
func (c *Client) Refund(ctx context.Context, transactionID string, req RefundRequest) (*RefundResponse, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	var out RefundResponse
	path := fmt.Sprintf("/payments/%s/refunds", url.PathEscape(transactionID))
	if err := c.call(ctx, operationRefund, http.MethodPost, path, req.IdempotencyKey, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus looks a transaction up, retrying timeouts, 429 and 5xx with
// jittered exponential backoff.
func (c *Client) GetStatus(ctx context.Context, transactionID string) (*StatusResponse, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	path := fmt.Sprintf("/payments/%s", url.PathEscape(transactionID))

	backoff := retry.NewExponential(c.backoff)
	backoff = retry.WithJitterPercent(retryJitterPercent, backoff)
	backoff = retry.WithCappedDuration(c.maxBackoff, backoff)
	backoff = retry.WithMaxRetries(c.maxRetries, backoff)

	var out StatusResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.call(ctx, operationStatus, http.MethodGet, path, "", nil, &out)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "gateway status lookup aborted")
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) ready() error {
	if !c.Configured() {
		return pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	return nil
}

func (c *Client) call(ctx context.Context, operation, method, path, idempotencyKey string, payload any, out any) (err error) {
	started := time.Now()
	defer func() {
		c.metrics.ObserveGatewayCall(operation, outcomeOf(err), time.Since(started))
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, marshalErr, "marshal gateway request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(callCtx, err) {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, fmt.Sprintf("gateway %s timed out after %s", operation, c.timeout))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("gateway %s unreachable", operation))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providerFailure(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyMaxBytes)).Decode(out); err != nil {
		if isTimeout(callCtx, err) {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, fmt.Sprintf("gateway %s timed out after %s", operation, c.timeout))
		}
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("decode gateway %s response", operation))
	}
	return nil
}

func providerFailure(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	perr := &ProviderError{HTTPStatus: resp.StatusCode}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, perr)
		perr.HTTPStatus = resp.StatusCode
	}
	if strings.TrimSpace(perr.Message) == "" {
		perr.Message = strings.TrimSpace(string(raw))
	}
	if perr.Message == "" {
		perr.Message = http.StatusText(resp.StatusCode)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, perr, fmt.Sprintf("gateway %s rejected: %s", operation, perr.Message)).
		WithDetails(map[string]any{
			"provider_code":    perr.Code,
			"provider_message": perr.Message,
			"http_status":      perr.HTTPStatus,
		})
}

// IsUnreachable reports whether err means the gateway could not be reached at
// all, as opposed to a rejection or a timeout.
func IsUnreachable(err error) bool {
	return pkgerrors.Is(err, pkgerrors.CodeDependency)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryable(err error) bool {
	if pkgerrors.Is(err, pkgerrors.CodeGatewayTimeout) {
		return true
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.retryable()
	}
	return false
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case pkgerrors.Is(err, pkgerrors.CodeGatewayTimeout):
		return "timeout"
	default:
		return "error"
	}
}
