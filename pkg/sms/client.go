// Package sms sends text messages through the provider's Messages API and asks
// for delivery reports on the SMS webhook.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const (
	defaultTimeout     = 10 * time.Second
	errorBodyReadLimit = 4096
	maxBodyLength      = 1600
)

var errNotConfigured = errors.New("sms provider not configured")

// Message is the provider's acknowledgement of a queued SMS.
type Message struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type providerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client posts messages to the SMS provider. Sends are never retried: a
// timed-out request may still have been delivered.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accountSID  string
	authToken   string
	from        string
	callbackURL string
	logg        *logger.Logger
}

// NewClient builds a client from cfg. statusCallback is where delivery reports are sent.
func NewClient(cfg config.SMSConfig, statusCallback string, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errNotConfigured
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid sms base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(base.String(), "/"),
		accountSID:  strings.TrimSpace(cfg.AccountSID),
		authToken:   strings.TrimSpace(cfg.AuthToken),
		from:        strings.TrimSpace(cfg.FromNumber),
		callbackURL: strings.TrimSpace(statusCallback),
		logg:        logg,
	}, nil
}

// Send queues body for delivery to the E.164 number to and returns the provider message id.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "recipient phone number required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "message body required")
	}
	if len(body) > maxBodyLength {
		body = body[:maxBodyLength]
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)
	if c.callbackURL != "" {
		form.Set("StatusCallback", c.callbackURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sms request")
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sms provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		var perr providerError
		_ = json.Unmarshal(raw, &perr)
		return "", pkgerrors.New(pkgerrors.CodeDependency, "sms provider rejected message").WithDetails(map[string]any{
			"http_status":    resp.StatusCode,
			"provider_code":  perr.Code,
			"provider_error": perr.Message,
		})
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode sms response")
	}
	if msg.SID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "sms provider returned no message id")
	}

	if c.logg != nil {
		ctx = c.logg.WithFields(ctx, map[string]any{
			"sms_sid": msg.SID,
			"to":      logger.RedactPhone(to),
		})
		c.logg.Info(ctx, "sms queued")
	}
	return msg.SID, nil
}
