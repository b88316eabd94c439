package webhooks

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"transactionId":"TX-1","status":"completed"}`)
	sig := hex.EncodeToString(Sign(body, testSecret))

	cases := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		want      bool
	}{
		{name: "valid", body: body, signature: sig, secret: testSecret, want: true},
		{name: "prefixed", body: body, signature: "sha256=" + sig, secret: testSecret, want: true},
		{name: "uppercase hex", body: body, signature: "SHA256=" + hexUpper(sig), secret: testSecret, want: true},
		{name: "tampered body", body: []byte(`{"transactionId":"TX-1","status":"failed"}`), signature: sig, secret: testSecret, want: false},
		{name: "wrong secret", body: body, signature: sig, secret: "other", want: false},
		{name: "missing signature", body: body, signature: "", secret: testSecret, want: false},
		{name: "missing secret", body: body, signature: sig, secret: "", want: false},
		{name: "empty body", body: nil, signature: sig, secret: testSecret, want: false},
		{name: "not hex", body: body, signature: "zz-not-hex", secret: testSecret, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, VerifySignature(tc.body, tc.signature, tc.secret))
		})
	}
}

func TestVerifyTimestampedSignature(t *testing.T) {
	body := []byte(`{"transactionId":"TX-2","status":"completed"}`)
	sig := hex.EncodeToString(Sign(TimestampedPayload("1772366400", body), testSecret))

	assert.True(t, VerifyTimestampedSignature("1772366400", body, sig, testSecret))
	assert.True(t, VerifyTimestampedSignature(" 1772366400 ", body, "sha256="+sig, testSecret))
	assert.False(t, VerifyTimestampedSignature("1772370000", body, sig, testSecret))
	assert.False(t, VerifyTimestampedSignature("", body, sig, testSecret))
	assert.False(t, VerifyTimestampedSignature("1772366400", body, hex.EncodeToString(Sign(body, testSecret)), testSecret))
	assert.Equal(t, []byte("1772366400.{}"), TimestampedPayload("1772366400", []byte("{}")))
}

func TestVerifyTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	unix := func(d time.Duration) string { return strconv.FormatInt(now.Add(d).Unix(), 10) }

	assert.True(t, verifyTimestampAt(unix(-time.Minute), 0, now))
	assert.True(t, verifyTimestampAt(now.Add(-4*time.Minute).Format(time.RFC3339), 0, now))
	assert.True(t, verifyTimestampAt(unix(2*time.Minute), 0, now))
	assert.False(t, verifyTimestampAt(unix(-10*time.Minute), 0, now))
	assert.False(t, verifyTimestampAt(now.Add(10*time.Minute).Format(time.RFC3339), 0, now))
	assert.True(t, verifyTimestampAt(unix(-10*time.Minute), 15*time.Minute, now))
	assert.False(t, verifyTimestampAt("", 0, now))
	assert.False(t, verifyTimestampAt("yesterday", 0, now))
	assert.False(t, verifyTimestampAt("-5", 0, now))
}

func TestVerifySMSSignature(t *testing.T) {
	callback := "https://escrowpay.test/api/v1/webhooks/sms"
	params := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
		"AccountSid":    {"AC9"},
	}
	sig := base64.StdEncoding.EncodeToString(SignSMS(callback, params, "sms-token"))

	assert.True(t, VerifySMSSignature(callback, params, sig, "sms-token"))

	tampered := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"failed"},
		"AccountSid":    {"AC9"},
	}
	assert.False(t, VerifySMSSignature(callback, tampered, sig, "sms-token"))
	assert.False(t, VerifySMSSignature(callback+"?x=1", params, sig, "sms-token"))
	assert.False(t, VerifySMSSignature(callback, params, sig, "other-token"))
	assert.False(t, VerifySMSSignature(callback, params, "", "sms-token"))
	assert.False(t, VerifySMSSignature(callback, params, "%%%", "sms-token"))
}

func TestSignSMSOrdersParametersByName(t *testing.T) {
	a := SignSMS("u", url.Values{"b": {"2"}, "a": {"1"}}, "tok")
	b := SignSMS("u", url.Values{"a": {"1"}, "b": {"2"}}, "tok")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SignSMS("u", url.Values{"a": {"2"}, "b": {"1"}}, "tok"))
}

func hexUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func TestVerifySquareSignature(t *testing.T) {
	notificationURL := "https://escrowpay.test/api/v1/webhooks/square"
	body := []byte(`{"event_id":"evt-1","type":"payment.updated"}`)
	signed := Sign(append([]byte(notificationURL), body...), "sq-key")
	sig := base64.StdEncoding.EncodeToString(signed)

	assert.True(t, VerifySquareSignature(notificationURL, body, sig, "sq-key"))
	assert.False(t, VerifySquareSignature(notificationURL+"/other", body, sig, "sq-key"))
	assert.False(t, VerifySquareSignature(notificationURL, []byte(`{"event_id":"evt-2"}`), sig, "sq-key"))
	assert.False(t, VerifySquareSignature(notificationURL, body, sig, ""))
	assert.False(t, VerifySquareSignature(notificationURL, body, "%%%", "sq-key"))
}
