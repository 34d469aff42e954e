package cmd

import (
	"time"

	"github.com/isometry/gh-approval-gate/internal/config"
	"github.com/isometry/gh-approval-gate/internal/helpers"
)

var envMapString = map[*string]boundEnvVar[string]{
	&config.Global.Mode: {
		Name:        "mode",
		Description: "The application runtime mode. Possible values are 'lambda', 'lambda-event' and 'service'",
		Short:       helpers.Ptr("m"),
	},
	&config.GitHub.AuthMode: {
		Name:        "github-auth-mode",
		Description: "Authentication credentials provider. Supported values are 'token' and 'ssm'.",
		Short:       helpers.Ptr("A"),
	},
	&config.GitHub.SSMKey: {
		Name:        "github-app-ssm-arn",
		Description: "The SSM parameter key to use when fetching GitHub App credentials",
	},
	&config.GitHub.WebhookSecret: {
		Name:        "github-webhook-secret",
		Description: "The secret to use when validating incoming GitHub webhook payloads. Mandatory",
	},
	&config.Policy.AuthorizedUser: {
		Name:        "policy-authorized-user",
		Description: "The identity authorized to deploy, compared case-insensitively",
		Env:         helpers.Ptr("AUTHORIZED_USER"),
	},
	&config.Global.Audit.S3.BucketName: {
		Name:        "audit-s3-bucket",
		Description: "The S3 bucket to use when archiving verified webhook payloads",
		Env:         helpers.Ptr("AUDIT_S3_BUCKET"),
	},
}

var envMapBool = map[*bool]boundEnvVar[bool]{
	&config.Global.Logging.CallerTrace: {
		Name:        "verbosity-caller-trace",
		Description: "Enable caller trace in logs",
		Short:       helpers.Ptr("V"),
	},
	&config.Global.Audit.S3.Enabled: {
		Name:        "audit-s3",
		Description: "Enable S3 archival of verified webhook payloads",
		Env:         helpers.Ptr("AUDIT_S3_UPLOAD"),
	},
	&config.GitHub.AnnotateRuns: {
		Name:        "github-annotate-runs",
		Description: "Annotate rejected workflow runs with the rejection reason",
	},
}

var envMapCount = map[*int]boundEnvVar[int]{
	&config.Global.Logging.Verbosity: {
		Name:        "verbosity",
		Description: "Increase logger verbosity (default WarnLevel)",
		Short:       helpers.Ptr("v"),
	},
}

var envMapDuration = map[*time.Duration]boundEnvVar[time.Duration]{
	&config.GitHub.Review.Timeout: {
		Name:        "github-review-timeout",
		Description: "The timeout for each individual review submission attempt",
	},
}

var envMapStringSlice = map[*[]string]boundEnvVar[[]string]{
	&config.Policy.AuthorizedUsers: {
		Name:        "policy-authorized-users",
		Description: "The set of identities authorized to deploy. Takes precedence over --policy-authorized-user",
		Env:         helpers.Ptr("AUTHORIZED_USERS"),
	},
}
