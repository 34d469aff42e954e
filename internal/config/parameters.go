// Package config provides a centralized entrypoint for the application parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Runtime modes.
const (
	// ModeService runs the gate as a standalone HTTP server.
	ModeService = "service"
	// ModeLambdaHTTP runs the gate as a Lambda behind an HTTP-shaped trigger.
	ModeLambdaHTTP = "lambda"
	// ModeLambdaEvent runs the gate as a Lambda receiving raw event payloads.
	ModeLambdaEvent = "lambda-event"
)

var (
	// Global is a struct that contains the global configuration.
	Global global
	// GitHub is a struct that contains the configuration for GitHub.
	GitHub github
	// Policy is a struct that contains the deployment authorization policy.
	Policy policy
	// Service is a struct that contains the configuration for the service mode.
	Service service
	// Lambda is a struct that contains the configuration for the lambda mode.
	Lambda lambda
)

type global struct {
	// Mode is the runtime mode of the application.
	Mode string `yaml:"mode,omitempty" default:"lambda"`
	// Logging is a struct that contains the logging configuration.
	Logging struct {
		// Verbosity is the verbosity level of the application. It represents slog levels.
		Verbosity int `yaml:"verbosity,omitempty"`
		// CallerTrace is a flag that enables the caller trace in the logger.
		CallerTrace bool `yaml:"callerTrace,omitempty"`
	} `yaml:"logging,omitempty"`
	// Audit is a struct that contains the configuration for payload archival.
	Audit struct {
		S3 struct {
			BucketName string `yaml:"bucketName,omitempty"`
			Enabled    bool   `yaml:"enabled,omitempty"`
		} `yaml:"s3,omitempty"`
	} `yaml:"audit,omitempty"`
}

type github struct {
	// AuthMode selects the credentials provider. Supported values are 'token' and 'ssm'.
	AuthMode string `yaml:"authMode,omitempty" default:"token"`
	// SSMKey is the SSM parameter holding the GitHub App credentials.
	SSMKey string `yaml:"ssmKey,omitempty"`
	// WebhookSecret signs incoming webhook deliveries. Mandatory.
	WebhookSecret string `yaml:"webhookSecret,omitempty"`
	// Review is a struct that contains the deployment review submission knobs.
	Review struct {
		// Timeout bounds each individual submission attempt.
		Timeout time.Duration `yaml:"timeout,omitempty" default:"10s"`
		// Attempts is the total attempt ceiling, first try included.
		Attempts int `yaml:"attempts,omitempty" default:"3"`
	} `yaml:"review,omitempty"`
	// AnnotateRuns enables the best-effort workflow run annotation on rejections.
	AnnotateRuns bool `yaml:"annotateRuns,omitempty"`
}

type policy struct {
	// AuthorizedUser is the single identity allowed to deploy. Case-insensitive.
	AuthorizedUser string `yaml:"authorizedUser,omitempty"`
	// AuthorizedUsers optionally widens the policy to a set of identities.
	// Takes precedence over AuthorizedUser when non-empty.
	AuthorizedUsers []string `yaml:"authorizedUsers,omitempty"`
}

type service struct {
	Path    string        `yaml:"path,omitempty" default:"/"`
	Addr    string        `yaml:"addr,omitempty"`
	Port    string        `yaml:"port,omitempty" default:"8080"`
	Timeout time.Duration `yaml:"timeout,omitempty" default:"5s"`
}

type lambda struct {
	PayloadType string `yaml:"payloadType,omitempty" default:"api-gateway-v2"`
}

// SetDefaults sets the default values for the configuration.
func SetDefaults() error {
	return errors.Join(
		defaults.Set(&Global),
		defaults.Set(&GitHub),
		defaults.Set(&Policy),
		defaults.Set(&Service),
		defaults.Set(&Lambda),
	)
}

// Validate enforces the startup-time invariants: the gate refuses to run with
// an incomplete configuration rather than failing open per request.
func Validate() error {
	var errs []error
	if GitHub.WebhookSecret == "" {
		errs = append(errs, errors.New("missing webhook secret [GITHUB_WEBHOOK_SECRET]"))
	}
	if Policy.AuthorizedUser == "" && len(Policy.AuthorizedUsers) == 0 {
		errs = append(errs, errors.New("missing authorized user [AUTHORIZED_USER]"))
	}
	switch GitHub.AuthMode {
	case "token":
		if os.Getenv("GITHUB_TOKEN") == "" {
			errs = append(errs, errors.New("missing API credential [GITHUB_TOKEN]"))
		}
	case "ssm":
		if GitHub.SSMKey == "" {
			errs = append(errs, errors.New("missing SSM parameter key [GITHUB_APP_SSM_ARN]"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth mode: %s", GitHub.AuthMode))
	}
	return errors.Join(errs...)
}

// LoadFromFile loads the configuration from a file.
func LoadFromFile(path string) error {
	if len(path) == 0 {
		return nil
	}
	fstat, err := os.Stat(path)
	if err != nil {
		return nil //nolint:nilerr // If the file does not exist, we ignore it.
	}
	if fstat.IsDir() {
		return fmt.Errorf("configuration file %s is a directory", path)
	}
	if !fstat.Mode().IsRegular() {
		return fmt.Errorf("configuration file %s is not a regular file", path)
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	type all struct {
		Global  global  `yaml:"global,omitempty"`
		GitHub  github  `yaml:"github,omitempty"`
		Policy  policy  `yaml:"policy,omitempty"`
		Service service `yaml:"service,omitempty"`
		Lambda  lambda  `yaml:"lambda,omitempty"`
	}
	var a all
	if err = yaml.Unmarshal(content, &a); err != nil {
		return fmt.Errorf("failed to unmarshal configuration file %s: %w", path, err)
	}
	Global = a.Global
	GitHub = a.GitHub
	Policy = a.Policy
	Service = a.Service
	Lambda = a.Lambda

	return nil
}
