package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v68/github"
	"github.com/isometry/gh-approval-gate/internal/helpers"
	"github.com/isometry/gh-approval-gate/internal/models"
)

// The review API caps comment length; longer rejection reasons are truncated.
const maxReviewCommentLength = 1024

// reviewRequest mirrors the deployment protection rule review API body.
type reviewRequest struct {
	EnvironmentName string         `json:"environment_name"`
	State           models.Outcome `json:"state"`
	Comment         string         `json:"comment"`
}

// ReviewError is a failed review submission, classified for response-code
// selection: transient failures exhausted their retry budget, terminal ones
// were never retried.
type ReviewError struct {
	Transient bool
	Attempts  int
	Cause     error
}

func (e *ReviewError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("review submission failed (%s, %d attempt(s)): %v", kind, e.Attempts, e.Cause)
}

func (e *ReviewError) Unwrap() error {
	return e.Cause
}

// SubmitReview records the decision against the pending deployment via the
// callback URL carried by the event. Transient failures (network, 5xx, rate
// limiting) are retried with bounded exponential backoff; other 4xx responses
// surface immediately. A confirmed success is never re-submitted.
func (g *Controller) SubmitReview(ctx context.Context, clients *Client, event *models.WebhookEvent, decision models.Decision) error {
	logger := g.logger.With(
		slog.String("repo", event.Repository.FullName),
		slog.Int64("runID", event.RunID),
		slog.String("outcome", string(decision.Outcome)))

	var attempts int
	transient := true
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, g.reviewTimeout)
		defer cancel()

		req, err := clients.V3.NewRequest(http.MethodPost, event.CallbackURL, &reviewRequest{
			EnvironmentName: event.Environment,
			State:           decision.Outcome,
			Comment:         helpers.Truncate(decision.Reason, maxReviewCommentLength),
		})
		if err != nil {
			transient = false
			return backoff.Permanent(err)
		}

		if _, err = clients.V3.Do(attemptCtx, req, nil); err != nil {
			if isTransient(err) {
				logger.Warn("transient review submission failure, retrying...", slog.Int("attempt", attempts), slog.Any("error", err))
				return err
			}
			transient = false
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(g.newBackOff(), ctx)); err != nil {
		return &ReviewError{Transient: transient, Attempts: attempts, Cause: err}
	}

	logger.Info("review submitted", slog.Int("attempts", attempts))
	return nil
}

// AnnotateRunRejection leaves an audit trail against the rejected workflow
// run. Best effort: failures are logged, never surfaced, and the rejection
// itself is already visible in the GitHub UI.
func (g *Controller) AnnotateRunRejection(ctx context.Context, clients *Client, event *models.WebhookEvent, reason string) {
	logger := g.logger.With(slog.String("repo", event.Repository.FullName), slog.Int64("runID", event.RunID))
	if event.RunID == 0 {
		logger.Debug("no run ID available, skipping run annotation")
		return
	}

	jobs, _, err := clients.V3.Actions.ListWorkflowJobs(ctx, event.Repository.Owner, event.Repository.Name, event.RunID, &github.ListWorkflowJobsOptions{})
	if err != nil {
		logger.Warn("failed to list workflow jobs for annotation", slog.Any("error", err))
		return
	}
	logger.Info("deployment rejected", slog.Int("jobs", jobs.GetTotalCount()), slog.String("reason", reason))
}

// isTransient classifies submission failures. Anything that is not an
// explicit non-rate-limit 4xx is considered worth retrying.
func isTransient(err error) bool {
	switch e := err.(type) {
	case *github.RateLimitError, *github.AbuseRateLimitError:
		return true
	case *github.ErrorResponse:
		if e.Response == nil {
			return true
		}
		code := e.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	// Network errors and per-attempt timeouts.
	return true
}
