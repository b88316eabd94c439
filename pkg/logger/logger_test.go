package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func newJSON(buf *bytes.Buffer, opts Options) *Logger {
	opts.Output = buf
	opts.Format = "json"
	if opts.ServiceName == "" {
		opts.ServiceName = "test"
	}
	return New(opts)
}

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSON(buf, Options{Level: zerolog.DebugLevel})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithField(ctx, "escrow_id", "esc-1")
	log.Error(ctx, "release failed", errors.New("insufficient held balance"))

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "esc-1", entry["escrow_id"])
	assert.Equal(t, "insufficient held balance", entry["error"])
	assert.Equal(t, "test", entry["service"])
	assert.NotEmpty(t, entry["stack"])
}

func TestWithFieldsRedactsSensitiveValues(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSON(buf, Options{})

	fields := map[string]any{
		"phone_number": "+255712345678",
		"source_id":    "cnon:card-nonce-ok",
		"resource_id":  "payment-1",
	}
	ctx := log.WithFields(context.Background(), fields)
	log.Info(ctx, "payment initiated")

	entry := decodeLine(t, buf)
	assert.Equal(t, "***5678", entry["phone_number"])
	assert.Equal(t, redacted, entry["source_id"])
	assert.Equal(t, "payment-1", entry["resource_id"])
	assert.Equal(t, "+255712345678", fields["phone_number"], "caller map is not modified")
}

func TestCriticalTagsSeverity(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSON(buf, Options{})

	log.Critical(context.Background(), "gateway misconfigured", errors.New("missing api key"))

	entry := decodeLine(t, buf)
	assert.Equal(t, "critical", entry["severity"])
	assert.Equal(t, true, entry["alert"])
	assert.Equal(t, "error", entry["level"])
}

func TestSecurityEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSON(buf, Options{})

	log.Security(context.Background(), "webhook rejected", "signature_mismatch")

	entry := decodeLine(t, buf)
	assert.Equal(t, "security", entry["category"])
	assert.Equal(t, "signature_mismatch", entry["reason"])
}

func TestWarnStackIsOptional(t *testing.T) {
	buf := &bytes.Buffer{}
	newJSON(buf, Options{}).Warn(context.Background(), "slow gateway")
	assert.NotContains(t, decodeLine(t, buf), "stack")

	buf.Reset()
	newJSON(buf, Options{WarnStack: true}).Warn(context.Background(), "slow gateway")
	assert.Contains(t, decodeLine(t, buf), "stack")
}

func TestLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	newJSON(buf, Options{Level: zerolog.WarnLevel}).Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}

func TestRedactPhone(t *testing.T) {
	cases := map[string]string{
		"+255712345678": "***5678",
		"0712 345 678":  "***5678",
		"123":           "***",
		"":              "***",
	}
	for input, want := range cases {
		assert.Equal(t, want, RedactPhone(input), input)
	}
}

func TestRedactFields(t *testing.T) {
	fields := RedactFields(map[string]any{
		"phone_number":      "+255712345678",
		"payer_phone":       "***1234",
		"card_nonce":        "cnon:abc",
		"webhook_signature": "sig",
		"resource_id":       "r-1",
		"amount":            "100.00",
		"msisdn":            12345,
	})
	assert.Equal(t, "***5678", fields["phone_number"])
	assert.Equal(t, "***1234", fields["payer_phone"])
	assert.Equal(t, redacted, fields["card_nonce"])
	assert.Equal(t, redacted, fields["webhook_signature"])
	assert.Equal(t, redacted, fields["msisdn"])
	assert.Equal(t, "r-1", fields["resource_id"])
	assert.Equal(t, "100.00", fields["amount"])
}
