package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

const (
	HeaderRequestTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature        = "X-Slack-Signature"

	SignatureVersion     = "v0"
	DefaultSignatureSkew = 5 * time.Minute
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// SigningSecretVerifier checks the v0 HMAC-SHA256 request signature.
type SigningSecretVerifier struct {
	Secret string
	Skew   time.Duration
	Now    func() time.Time
}

func NewSigningSecretVerifier(secret string, skew time.Duration) SigningSecretVerifier {
	return SigningSecretVerifier{Secret: secret, Skew: skew}
}

func (v SigningSecretVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signing secret is required")
	}
	rawTimestamp := strings.TrimSpace(headerValue(req.Headers, HeaderRequestTimestamp))
	if rawTimestamp == "" {
		return fmt.Errorf("webhooks: %s header is required", HeaderRequestTimestamp)
	}
	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("webhooks: parse request timestamp: %w", err)
	}
	if drift := v.now().Sub(time.Unix(timestamp, 0)); drift > v.skew() || drift < -v.skew() {
		return fmt.Errorf("webhooks: request timestamp outside the %s window", v.skew())
	}

	header := strings.TrimSpace(headerValue(req.Headers, HeaderSignature))
	if header == "" {
		return fmt.Errorf("webhooks: %s header is required", HeaderSignature)
	}
	signature, ok := strings.CutPrefix(header, SignatureVersion+"=")
	if !ok {
		return fmt.Errorf("webhooks: unsupported signature version")
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("webhooks: decode hex signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, computeMAC(secret, rawTimestamp, req.Body)) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

// Sign returns the header value a sender would attach for body at timestamp.
func (v SigningSecretVerifier) Sign(timestamp int64, body []byte) string {
	mac := computeMAC(strings.TrimSpace(v.Secret), strconv.FormatInt(timestamp, 10), body)
	return SignatureVersion + "=" + hex.EncodeToString(mac)
}

// SignedHeaders returns the timestamp and signature headers for body.
func (v SigningSecretVerifier) SignedHeaders(body []byte) map[string]string {
	timestamp := v.now().Unix()
	return map[string]string{
		HeaderRequestTimestamp: strconv.FormatInt(timestamp, 10),
		HeaderSignature:        v.Sign(timestamp, body),
	}
}

func computeMAC(secret string, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(SignatureVersion + ":" + timestamp + ":"))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

func (v SigningSecretVerifier) skew() time.Duration {
	if v.Skew > 0 {
		return v.Skew
	}
	return DefaultSignatureSkew
}

func (v SigningSecretVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return value
	}
	for currentKey, value := range headers {
		if strings.EqualFold(currentKey, key) {
			return value
		}
	}
	return ""
}

var _ Verifier = SigningSecretVerifier{}
