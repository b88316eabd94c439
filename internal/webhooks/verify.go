// Package webhooks authenticates inbound provider callbacks before any state
// is touched.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTimestampTolerance bounds how far a webhook timestamp may drift from now.
const DefaultTimestampTolerance = 300 * time.Second

const signaturePrefix = "sha256="

// VerifySignature checks a hex HMAC-SHA256 of body keyed by secret. The header
// may carry a "sha256=" prefix. Missing input never verifies.
func VerifySignature(body []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if len(body) == 0 || signature == "" || secret == "" {
		return false
	}
	if len(signature) > len(signaturePrefix) && strings.EqualFold(signature[:len(signaturePrefix)], signaturePrefix) {
		signature = signature[len(signaturePrefix):]
	}
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(provided, Sign(body, secret))
}

// VerifyTimestampedSignature checks a signature computed over
// "<timestamp>.<body>", which binds the timestamp header to the payload.
func VerifyTimestampedSignature(timestamp string, body []byte, signature, secret string) bool {
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" || len(body) == 0 {
		return false
	}
	return VerifySignature(TimestampedPayload(timestamp, body), signature, secret)
}

// TimestampedPayload is the byte string a timestamped signature covers.
func TimestampedPayload(timestamp string, body []byte) []byte {
	payload := make([]byte, 0, len(timestamp)+1+len(body))
	payload = append(payload, timestamp...)
	payload = append(payload, '.')
	return append(payload, body...)
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// VerifyTimestamp accepts unix seconds or RFC3339 within tolerance of now in
// either direction. A non-positive tolerance uses DefaultTimestampTolerance.
func VerifyTimestamp(ts string, tolerance time.Duration) bool {
	return verifyTimestampAt(ts, tolerance, time.Now())
}

func verifyTimestampAt(ts string, tolerance time.Duration, now time.Time) bool {
	sent, ok := ParseTimestamp(ts)
	if !ok {
		return false
	}
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}
	drift := now.Sub(sent)
	if drift < 0 {
		drift = -drift
	}
	return drift <= tolerance
}

// ParseTimestamp reads a unix-seconds or RFC3339 timestamp.
func ParseTimestamp(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
		if secs <= 0 {
			return time.Time{}, false
		}
		return time.Unix(secs, 0), true
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// VerifySMSSignature checks the SMS provider signature: base64 HMAC-SHA1 over
// the callback URL followed by every parameter name and value, sorted by name.
func VerifySMSSignature(callbackURL string, params url.Values, signature, token string) bool {
	signature = strings.TrimSpace(signature)
	if callbackURL == "" || signature == "" || token == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, SignSMS(callbackURL, params, token))
}

// SignSMS computes the raw SMS callback signature.
func SignSMS(callbackURL string, params url.Values, token string) []byte {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(callbackURL)
	for _, key := range keys {
		for _, value := range params[key] {
			b.WriteString(key)
			b.WriteString(value)
		}
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return mac.Sum(nil)
}

// VerifySquareSignature checks Square's base64 HMAC-SHA256 over the
// subscription's notification URL followed by the raw body.
func VerifySquareSignature(notificationURL string, body []byte, signature, key string) bool {
	signature = strings.TrimSpace(signature)
	if notificationURL == "" || len(body) == 0 || signature == "" || key == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	payload := make([]byte, 0, len(notificationURL)+len(body))
	payload = append(payload, notificationURL...)
	payload = append(payload, body...)
	return hmac.Equal(provided, Sign(payload, key))
}
