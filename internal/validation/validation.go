// Package validation provides functionality for validating webhook signatures to verify request authenticity.
package validation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/go-github/v68/github"
)

// Signature validation failure modes. Callers only branch on allow/deny; the
// distinct errors exist for response-code selection and logging.
var (
	ErrMissingSecret      = errors.New("missing webhook secret")
	ErrMissingSignature   = errors.New("missing HMAC-SHA256 signature")
	ErrMalformedSignature = errors.New("malformed HMAC-SHA256 signature")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

const signaturePrefix = "sha256="

// WebhookSecret represents a secret used to validate webhook signatures for verifying request authenticity.
type WebhookSecret string

// NewWebhookSecret creates a new WebhookSecret instance from the provided secret string and returns its address.
func NewWebhookSecret(secret string) *WebhookSecret {
	s := WebhookSecret(secret)
	return &s
}

// Empty reports whether no secret material is present.
func (s *WebhookSecret) Empty() bool {
	return s == nil || *s == ""
}

// ValidateSignature validates the HMAC-SHA256 signature of a webhook request using the provided body and headers.
// The body must be the exact bytes received on the wire: re-serialised JSON is
// not guaranteed to be byte-identical to what was signed. Header keys are
// expected lowercase.
func (s *WebhookSecret) ValidateSignature(body []byte, headers map[string]string) error {
	if s.Empty() {
		return ErrMissingSecret
	}
	signature, found := headers[strings.ToLower(github.SHA256SignatureHeader)]
	if !found || signature == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return ErrMalformedSignature
	}
	received, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil || len(received) != sha256.Size {
		return ErrMalformedSignature
	}

	if !hmac.Equal(digest(body, *s), received) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign computes the signature header value the given body would carry.
func (s *WebhookSecret) Sign(body []byte) string {
	return signaturePrefix + hex.EncodeToString(digest(body, *s))
}

func digest(body []byte, secret WebhookSecret) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
