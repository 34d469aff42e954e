// Package github provides a Controller for GitHub operations and credentials management.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v68/github"
	"github.com/isometry/gh-approval-gate/internal/controllers/aws"
	"github.com/isometry/gh-approval-gate/internal/helpers"
	"github.com/isometry/gh-approval-gate/internal/validation"
	"github.com/pkg/errors"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// EventInstallationID represents an event payload containing an installation ID.
type EventInstallationID struct {
	Installation struct {
		ID *int64 `json:"id"`
	} `json:"installation"`
}

// GHOption is a functional option used to configure or modify the properties of a Controller instance.
type GHOption func(*Controller)

// NewController initializes a new Controller with the provided options, setting defaults where necessary.
func NewController(opts ...GHOption) (*Controller, error) {
	_inst := &Controller{
		clientCache: make(map[int64]*Client),
	}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.ctx == nil {
		_inst.ctx = context.Background()
	}
	if _inst.logger == nil {
		_inst.logger = helpers.NewNoopLogger()
	}
	if _inst.reviewTimeout <= 0 {
		_inst.reviewTimeout = 10 * time.Second
	}
	if _inst.reviewAttempts <= 0 {
		_inst.reviewAttempts = 3
	}
	if _inst.newBackOff == nil {
		attempts := _inst.reviewAttempts
		_inst.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return backoff.WithMaxRetries(b, uint64(attempts-1)) //nolint:gosec // attempts is a small positive knob
		}
	}
	_inst.logger = _inst.logger.With("authMode", _inst.authMode)
	return _inst, nil
}

// Client - cache struct holding a client pair for each installation ID.
type Client struct {
	installationID int64
	V3             *github.Client
	V4             *githubv4.Client
}

// Controller encapsulates GitHub operations and credentials management for various authentication modes.
type Controller struct {
	Credentials

	authMode       string
	ssmKey         string
	ctx            context.Context
	logger         *slog.Logger
	awsController  *aws.Controller
	reviewTimeout  time.Duration
	reviewAttempts int
	newBackOff     func() backoff.BackOff

	mu          sync.Mutex
	clientCache map[int64]*Client
}

// Credentials is a helper struct to hold the GitHub credentials.
type Credentials struct {
	AppID         int64                     `json:"app_id,omitempty"`
	PrivateKey    string                    `json:"private_key,omitempty"`
	WebhookSecret *validation.WebhookSecret `json:"webhook_secret"`
	Token         string                    `json:"token,omitempty"`
}

// RetrieveCredentials fetches the GitHub credentials from the environment or SSM.
func (g *Controller) RetrieveCredentials() error {
	switch strings.TrimSpace(strings.ToLower(g.authMode)) {
	case "token":
		if g.Token == "" {
			return errors.New("missing [GITHUB_TOKEN]")
		}
		return nil
	case "ssm":
		if g.WebhookSecret != nil && g.AppID != 0 && g.PrivateKey != "" {
			g.logger.Debug("using cached GitHub App credentials...")
			return nil
		}
		g.logger.Debug("retrieving credentials from SSM...")
		secret, err := g.awsController.GetSecret(g.ssmKey, true)
		if err != nil {
			return errors.Wrap(err, "failed to fetch credentials from SSM")
		}
		if err = json.Unmarshal([]byte(*secret), &g.Credentials); err != nil {
			return errors.Wrap(err, "failed to unmarshal credentials")
		}
	default:
		return fmt.Errorf("unsupported auth mode: %s", g.authMode)
	}
	return nil
}

// Clients returns a client pair for the event's installation, spawning and
// caching new clients on a miss. Token mode does not require an installation
// ID and shares a single cache slot.
func (g *Controller) Clients(body []byte) (*Client, error) {
	var installationID int64
	var eventInstallationID EventInstallationID
	if err := json.Unmarshal(body, &eventInstallationID); err == nil && eventInstallationID.Installation.ID != nil {
		installationID = *eventInstallationID.Installation.ID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clientCache[installationID]; ok {
		g.logger.Debug("cache hit. using cached clients...", slog.Int64("installationID", installationID))
		return client, nil
	}

	g.logger.Debug("cache miss. spawning clients...", slog.Int64("installationID", installationID))
	var (
		clientV3 *github.Client
		clientV4 *githubv4.Client
	)
	switch strings.TrimSpace(strings.ToLower(g.authMode)) {
	case "token":
		g.logger.Debug("[GITHUB_TOKEN] detected. Spawning clients using PAT...")
		roundTripper := &loggingRoundTripper{logger: g.logger}
		src := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: g.Token},
		)
		httpClient := oauth2.NewClient(g.ctx, src)
		v3rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(roundTripper)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create rate limiter client")
		}
		v4rateLimiter, _ := github_ratelimit.NewRateLimitWaiterClient(httpClient.Transport)

		clientV3 = github.NewClient(v3rateLimiter).WithAuthToken(g.Token)
		clientV4 = githubv4.NewClient(v4rateLimiter)
	case "ssm":
		if installationID == 0 {
			return nil, errors.New("no installation ID found")
		}
		g.logger.Debug("spawning clients using GitHub App credentials from SSM...")
		roundTripper := &loggingRoundTripper{logger: g.logger}
		transport, err := ghinstallation.New(roundTripper, g.AppID, installationID, []byte(g.PrivateKey))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create installation transport")
		}

		rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(transport)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create rate limiter client")
		}
		clientV3 = github.NewClient(rateLimiter)
		clientV4 = githubv4.NewClient(rateLimiter)
	default:
		return nil, errors.New("no valid credentials found")
	}

	g.clientCache[installationID] = &Client{
		installationID: installationID,
		V3:             clientV3,
		V4:             clientV4,
	}
	g.logger.Debug("successfully cached spawned clients...", slog.Int64("installationID", installationID))
	return g.clientCache[installationID], nil
}

// ValidateWebhookSecret verifies the webhook signature in the provided headers against the raw body.
func (g *Controller) ValidateWebhookSecret(body []byte, headers map[string]string) error {
	return g.WebhookSecret.ValidateSignature(body, headers)
}

// WhoAmI resolves the login the configured credentials authenticate as.
// Used as a startup sanity check in token mode.
func (g *Controller) WhoAmI(ctx context.Context, clients *Client) (string, error) {
	var query struct {
		Viewer struct {
			Login githubv4.String
		}
	}
	if err := clients.V4.Query(ctx, &query, nil); err != nil {
		return "", errors.Wrap(err, "viewer query failed")
	}
	return string(query.Viewer.Login), nil
}

type loggingRoundTripper struct {
	logger *slog.Logger
}

// RoundTrip logs the request and response.
func (l *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var buf bytes.Buffer
	if req.Body != nil {
		_, _ = io.ReadAll(io.TeeReader(req.Body, &buf))
		req.Body = io.NopCloser(&buf)
	}
	var container map[string]any
	_ = json.NewDecoder(&buf).Decode(&container)
	l.logger.Log(req.Context(), slog.Level(-8), "sending request", slog.String("method", req.Method), slog.String("url", req.URL.String()), slog.Any("body", container))
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		l.logger.Log(req.Context(), slog.Level(-8), "request failed", slog.Any("error", err))
		return nil, err
	}
	if remaining := resp.Header.Get("X-Ratelimit-Remaining"); remaining != "" {
		helpers.OnceAMinute.Do(func() {
			l.logger.Debug("rate limit remaining", slog.String("remaining", remaining))
		})
	}
	l.logger.Log(req.Context(), slog.Level(-8), "received response", slog.Any("status", resp.Status))
	return resp, nil
}
