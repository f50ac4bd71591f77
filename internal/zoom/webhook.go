package zoom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// Webhook signature headers.
const (
	SignatureHeader = "x-zm-signature"
	TimestampHeader = "x-zm-request-timestamp"
	signatureScheme = "v0"
)

var (
	// ErrSignature is returned when a webhook signature does not verify.
	ErrSignature = errors.New("webhook signature mismatch")
	// ErrStaleTimestamp is returned when a webhook timestamp is outside the allowed skew.
	ErrStaleTimestamp = errors.New("webhook timestamp outside allowed skew")
)

// Verifier checks webhook signatures of the form v0=hex(HMAC-SHA256(secret, "v0:{ts}:{body}")).
type Verifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier creates a verifier. A zero maxSkew disables the timestamp check.
func NewVerifier(secret string, maxSkew time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), maxSkew: maxSkew, now: time.Now}
}

// Sign returns the signature header value for timestamp and body.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureScheme + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureScheme + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against the expected value in constant time.
func (v *Verifier) Verify(timestamp string, body []byte, signature string) error {
	if len(v.secret) == 0 || timestamp == "" || signature == "" {
		return ErrSignature
	}
	if !hmac.Equal([]byte(v.Sign(timestamp, body)), []byte(signature)) {
		return ErrSignature
	}
	if v.maxSkew > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrStaleTimestamp
		}
		sent := unixAuto(ts)
		if d := v.now().Sub(sent); d > v.maxSkew || d < -v.maxSkew {
			return ErrStaleTimestamp
		}
	}
	return nil
}

// EncryptToken answers a url_validation challenge: hex(HMAC-SHA256(secret, plainToken)).
func (v *Verifier) EncryptToken(plainToken string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(plainToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// unixAuto accepts seconds or milliseconds.
func unixAuto(ts int64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}
