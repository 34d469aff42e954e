package cmd

import (
	"context"
	"os"

	"github.com/isometry/gh-approval-gate/internal/config"
	"github.com/isometry/gh-approval-gate/internal/handler"
	"github.com/isometry/gh-approval-gate/internal/policy"
	"github.com/pkg/errors"
)

// gatePolicy builds the authorization policy from configuration. The
// multi-user form wins when present.
func gatePolicy() policy.Policy {
	if len(config.Policy.AuthorizedUsers) > 0 {
		return policy.NewUsers(config.Policy.AuthorizedUsers...)
	}
	return policy.NewSingleUser(config.Policy.AuthorizedUser)
}

// newHandler validates the configuration and assembles the approval handler.
// Startup fails fast on incomplete configuration.
func newHandler(ctx context.Context) (*handler.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	auditBucket := ""
	if config.Global.Audit.S3.Enabled {
		auditBucket = config.Global.Audit.S3.BucketName
	}

	hdl, err := handler.NewApprovalHandler(
		handler.WithAuthMode(config.GitHub.AuthMode),
		handler.WithSSMKey(config.GitHub.SSMKey),
		handler.WithToken(os.Getenv("GITHUB_TOKEN")),
		handler.WithWebhookSecret(config.GitHub.WebhookSecret),
		handler.WithPolicy(gatePolicy()),
		handler.WithAuditBucket(auditBucket),
		handler.WithAnnotateRuns(config.GitHub.AnnotateRuns),
		handler.WithReviewTimeout(config.GitHub.Review.Timeout),
		handler.WithReviewAttempts(config.GitHub.Review.Attempts),
		handler.WithLambdaPayloadType(config.Lambda.PayloadType),
		handler.WithContext(ctx),
		handler.WithLogger(logger.With("component", "approval-handler")))
	if err != nil {
		return nil, err
	}

	if config.GitHub.AuthMode == "token" {
		if login, err := hdl.WhoAmI(ctx); err != nil {
			logger.Warn("failed to resolve authenticated identity", "error", err)
		} else {
			logger.Info("authenticated", "login", login)
		}
	}

	return hdl, nil
}
