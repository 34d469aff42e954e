package github

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/isometry/gh-approval-gate/internal/controllers/aws"
	"github.com/isometry/gh-approval-gate/internal/validation"
)

// WithToken sets the GitHub authentication token for the Controller instance.
func WithToken(token string) GHOption {
	return func(a *Controller) {
		a.Token = token
	}
}

// WithAuthMode sets the authentication mode for a Controller instance using the given mode string.
func WithAuthMode(mode string) GHOption {
	return func(a *Controller) {
		a.authMode = mode
	}
}

// WithAWSController sets the awsController field used for SSM credential retrieval.
func WithAWSController(aws *aws.Controller) GHOption {
	return func(a *Controller) {
		a.awsController = aws
	}
}

// WithSSMKey sets the SSM key used for fetching credentials and applies it to the Controller instance.
func WithSSMKey(key string) GHOption {
	return func(a *Controller) {
		a.ssmKey = key
	}
}

// WithLogger sets a custom logger for the Controller instance to use for logging operations.
func WithLogger(logger *slog.Logger) GHOption {
	return func(a *Controller) {
		a.logger = logger
	}
}

// WithContext sets the context used for client construction and outbound calls.
func WithContext(ctx context.Context) GHOption {
	return func(a *Controller) {
		a.ctx = ctx
	}
}

// WithWebhookSecret configures a Controller instance to use the provided webhook secret for validating webhook signatures.
func WithWebhookSecret(secret *validation.WebhookSecret) GHOption {
	return func(a *Controller) {
		a.WebhookSecret = secret
	}
}

// WithReviewTimeout bounds each individual review submission attempt.
func WithReviewTimeout(timeout time.Duration) GHOption {
	return func(a *Controller) {
		a.reviewTimeout = timeout
	}
}

// WithReviewAttempts sets the total review submission attempt ceiling, first try included.
func WithReviewAttempts(attempts int) GHOption {
	return func(a *Controller) {
		a.reviewAttempts = attempts
	}
}

// WithReviewBackOff overrides the backoff strategy used between review
// submission attempts. Tests inject a zero-delay strategy here.
func WithReviewBackOff(newBackOff func() backoff.BackOff) GHOption {
	return func(a *Controller) {
		a.newBackOff = newBackOff
	}
}
