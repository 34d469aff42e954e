// Package handler orchestrates the approval pipeline: signature validation,
// payload parsing, policy evaluation and review submission.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gogithub "github.com/google/go-github/v68/github"
	"github.com/isometry/gh-approval-gate/internal/controllers/aws"
	"github.com/isometry/gh-approval-gate/internal/controllers/github"
	"github.com/isometry/gh-approval-gate/internal/models"
	"github.com/isometry/gh-approval-gate/internal/policy"
	"github.com/isometry/gh-approval-gate/internal/validation"
	"github.com/isometry/gh-approval-gate/internal/webhook"
	pkgerrors "github.com/pkg/errors"
)

// Option is a functional option used to configure a Handler instance.
type Option func(*Handler)

// Handler wires the gate's stages together. One instance serves all requests;
// it holds no per-request state.
type Handler struct {
	ctx               context.Context
	logger            *slog.Logger
	githubController  *github.Controller
	awsController     *aws.Controller
	authMode          string
	ssmKey            string
	ghToken           string
	webhookSecret     *validation.WebhookSecret
	policy            policy.Policy
	lambdaPayloadType string
	auditBucket       string
	annotateRuns      bool
	reviewTimeout     time.Duration
	reviewAttempts    int
	newBackOff        func() backoff.BackOff
}

// processedEvent is the success-path response body.
type processedEvent struct {
	Outcome     models.Outcome `json:"outcome"`
	Actor       string         `json:"actor"`
	Environment string         `json:"environment"`
	Repository  string         `json:"repository"`
}

// NewApprovalHandler initializes a Handler with the provided options, spawning
// the AWS and GitHub controllers it depends on.
func NewApprovalHandler(options ...Option) (*Handler, error) {
	_inst := &Handler{
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		opt(_inst)
	}

	if _inst.ctx == nil {
		_inst.ctx = context.Background()
	}

	awsCtl, err := aws.NewController(
		aws.WithLogger(_inst.logger.With("component", "aws-controller")),
		aws.WithContext(_inst.ctx))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create AWS controller")
	}

	ghOpts := []github.GHOption{
		github.WithLogger(_inst.logger.With("component", "github-controller")),
		github.WithContext(_inst.ctx),
		github.WithSSMKey(_inst.ssmKey),
		github.WithAuthMode(_inst.authMode),
		github.WithToken(_inst.ghToken),
		github.WithAWSController(awsCtl),
		github.WithWebhookSecret(_inst.webhookSecret),
		github.WithReviewTimeout(_inst.reviewTimeout),
		github.WithReviewAttempts(_inst.reviewAttempts),
	}
	if _inst.newBackOff != nil {
		ghOpts = append(ghOpts, github.WithReviewBackOff(_inst.newBackOff))
	}
	ghCtl, err := github.NewController(ghOpts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create the GitHub controller instance")
	}
	_inst.awsController = awsCtl
	_inst.githubController = ghCtl

	return _inst, nil
}

// Process runs one webhook delivery through the full pipeline and returns the
// transport-agnostic response. The body must be the exact bytes received on
// the wire.
func (h *Handler) Process(ctx context.Context, body []byte, headers map[string]string) (response models.Response, err error) {
	logger := h.logger
	logger.Info("processing request...")

	// Fail closed: without a secret and a policy no request can be trusted.
	if h.webhookSecret.Empty() {
		err = &IncompleteConfigError{Missing: "webhook secret"}
		logger.Error("refusing request", slog.Any("error", err))
		return models.Response{Body: err.Error(), StatusCode: http.StatusInternalServerError}, err
	}
	if h.policy == nil {
		err = &IncompleteConfigError{Missing: "authorization policy"}
		logger.Error("refusing request", slog.Any("error", err))
		return models.Response{Body: err.Error(), StatusCode: http.StatusInternalServerError}, err
	}

	eventType, found := headers[strings.ToLower(gogithub.EventTypeHeader)]
	if !found {
		logger.Warn("missing event type")
		return models.Response{Body: "missing event type", StatusCode: http.StatusBadRequest}, &NoEventTypeError{}
	}
	logger = logger.With(slog.String("event", eventType))

	// Signature first: nothing else may touch an unverified body.
	if err = h.webhookSecret.ValidateSignature(body, headers); err != nil {
		logger.Warn("validating signature", slog.Any("error", err))
		return models.Response{Body: "invalid signature", StatusCode: http.StatusUnauthorized}, err
	}
	logger.Debug("request body is valid")

	if deliveryID, ok := headers[strings.ToLower(gogithub.DeliveryIDHeader)]; ok {
		logger = logger.With(slog.String("deliveryId", deliveryID))
		if archiveErr := h.awsController.ArchivePayload(ctx, deliveryID, h.auditBucket, body); archiveErr != nil {
			// The decision outranks the archive.
			logger.Warn("failed to archive payload", slog.Any("error", archiveErr))
		}
	}

	event, err := webhook.Parse(eventType, body)
	if err != nil {
		if errors.Is(err, webhook.ErrUnsupportedEvent) {
			logger.Info("ignoring unsupported event", slog.Any("reason", err))
			return models.Response{Body: "event ignored", StatusCode: http.StatusOK}, nil
		}
		logger.Warn("parsing webhook payload", slog.Any("error", err))
		return models.Response{Body: err.Error(), StatusCode: http.StatusBadRequest}, err
	}
	logger = logger.With(
		slog.String("repo", event.Repository.FullName),
		slog.String("environment", event.Environment),
		slog.String("actor", event.Actor))

	decision := policy.Decide(event, h.policy)
	logger.Info("policy evaluated", slog.String("outcome", string(decision.Outcome)))

	if err = h.githubController.RetrieveCredentials(); err != nil {
		logger.Warn("failed to refresh credentials", slog.Any("error", err))
		return models.Response{Body: err.Error(), StatusCode: http.StatusInternalServerError}, err
	}

	logger.Debug("authenticating...")
	clients, err := h.githubController.Clients(body)
	if err != nil {
		logger.Warn("failed to authenticate", slog.Any("error", err))
		return models.Response{Body: err.Error(), StatusCode: http.StatusInternalServerError}, err
	}

	if err = h.githubController.SubmitReview(ctx, clients, event, decision); err != nil {
		logger.Error("review submission failed", slog.Any("error", err))
		status := http.StatusBadGateway
		var reviewErr *github.ReviewError
		if errors.As(err, &reviewErr) && reviewErr.Transient {
			status = http.StatusGatewayTimeout
		}
		return models.Response{Body: err.Error(), StatusCode: status}, err
	}

	if decision.Outcome == models.Rejected && h.annotateRuns {
		h.githubController.AnnotateRunRejection(ctx, clients, event, decision.Reason)
	}

	logger.Info("review recorded", slog.String("outcome", string(decision.Outcome)))
	respBody, err := json.Marshal(processedEvent{
		Outcome:     decision.Outcome,
		Actor:       decision.Actor,
		Environment: event.Environment,
		Repository:  event.Repository.FullName,
	})
	if err != nil {
		return models.Response{Body: fmt.Sprintf("review %s", decision.Outcome), StatusCode: http.StatusOK}, nil
	}
	return models.Response{
		Body:       string(respBody),
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"content-type": "application/json"},
	}, nil
}

// GetLambdaPayloadType returns the configured Lambda payload shape.
func (h *Handler) GetLambdaPayloadType() string {
	return h.lambdaPayloadType
}

// WhoAmI resolves the identity the configured credentials authenticate as.
// Startup sanity check for token mode; installation tokens are minted per
// event and cannot be probed ahead of time.
func (h *Handler) WhoAmI(ctx context.Context) (string, error) {
	if err := h.githubController.RetrieveCredentials(); err != nil {
		return "", err
	}
	clients, err := h.githubController.Clients([]byte(`{}`))
	if err != nil {
		return "", err
	}
	return h.githubController.WhoAmI(ctx, clients)
}
