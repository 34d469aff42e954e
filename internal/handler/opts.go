package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/isometry/gh-approval-gate/internal/policy"
	"github.com/isometry/gh-approval-gate/internal/validation"
)

// WithLogger sets the logger instance for the handler.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithContext sets the context for the handler.
func WithContext(ctx context.Context) Option {
	return func(h *Handler) {
		h.ctx = ctx
	}
}

// WithAuthMode sets the authentication mode for the handler. It is applied as a functional option during initialization.
func WithAuthMode(authMode string) Option {
	return func(h *Handler) {
		h.authMode = authMode
	}
}

// WithLambdaPayloadType sets the lambda payload type for a Handler instance.
func WithLambdaPayloadType(payloadType string) Option {
	return func(h *Handler) {
		h.lambdaPayloadType = payloadType
	}
}

// WithSSMKey sets the SSM key for retrieving credentials and adds it as an option to the handler configuration.
func WithSSMKey(key string) Option {
	return func(h *Handler) {
		h.ssmKey = key
	}
}

// WithToken sets the GitHub token used for authentication in the handler.
func WithToken(token string) Option {
	return func(h *Handler) {
		h.ghToken = token
	}
}

// WithWebhookSecret configures the handler with a webhook secret for request validation.
func WithWebhookSecret(secret string) Option {
	return func(h *Handler) {
		h.webhookSecret = validation.NewWebhookSecret(secret)
	}
}

// WithPolicy sets the authorization policy evaluated for every verified event.
func WithPolicy(p policy.Policy) Option {
	return func(h *Handler) {
		h.policy = p
	}
}

// WithAuditBucket enables archival of verified payloads to the named S3 bucket.
func WithAuditBucket(bucket string) Option {
	return func(h *Handler) {
		h.auditBucket = bucket
	}
}

// WithAnnotateRuns enables best-effort annotation of rejected workflow runs.
func WithAnnotateRuns(enabled bool) Option {
	return func(h *Handler) {
		h.annotateRuns = enabled
	}
}

// WithReviewTimeout bounds each review submission attempt.
func WithReviewTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		h.reviewTimeout = timeout
	}
}

// WithReviewAttempts sets the review submission attempt ceiling.
func WithReviewAttempts(attempts int) Option {
	return func(h *Handler) {
		h.reviewAttempts = attempts
	}
}

// WithReviewBackOff overrides the retry backoff strategy. Tests inject a
// zero-delay strategy here.
func WithReviewBackOff(newBackOff func() backoff.BackOff) Option {
	return func(h *Handler) {
		h.newBackOff = newBackOff
	}
}
