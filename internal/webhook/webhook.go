// Package webhook converts raw deployment_protection_rule payloads into the
// typed event model. Purely structural validation: no authorization here.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/isometry/gh-approval-gate/internal/models"
)

// EventType is the only webhook event this gate acts on.
const EventType = "deployment_protection_rule"

// actionRequested is the only action carrying a pending review.
const actionRequested = "requested"

var (
	// ErrUnsupportedEvent marks deliveries the gate deliberately ignores.
	// Not a failure: the no-op success path.
	ErrUnsupportedEvent = errors.New("unsupported event")
	// ErrMalformedPayload marks bodies that are not well-formed JSON or do
	// not decode into the expected event shape.
	ErrMalformedPayload = errors.New("malformed payload")
)

// MissingFieldError reports a required payload field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Field)
}

// Review callback URLs take the form
// /repos/{owner}/{repo}/actions/runs/{run_id}/deployment_protection_rule.
var runIDPattern = regexp.MustCompile(`/actions/runs/(\d+)/`)

// Parse validates the event type and decodes the raw body into a WebhookEvent.
// Event types other than deployment_protection_rule, and actions other than
// "requested", yield ErrUnsupportedEvent.
func Parse(eventType string, body []byte) (*models.WebhookEvent, error) {
	if eventType != EventType {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}

	parsed, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	e, ok := parsed.(*github.DeploymentProtectionRuleEvent)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected payload type %T", ErrMalformedPayload, parsed)
	}

	if action := e.GetAction(); action != actionRequested {
		return nil, fmt.Errorf("%w: action %q", ErrUnsupportedEvent, action)
	}

	event := &models.WebhookEvent{
		Action:      e.GetAction(),
		Environment: e.GetEnvironment(),
		Actor:       CleanUsername(resolveActor(e)),
		CallbackURL: e.GetDeploymentCallbackURL(),
		Repository: models.RepositoryContext{
			Owner:    e.GetRepo().GetOwner().GetLogin(),
			Name:     e.GetRepo().GetName(),
			FullName: e.GetRepo().GetFullName(),
		},
	}
	if e.Installation != nil {
		event.InstallationID = e.GetInstallation().ID
	}

	switch {
	case event.Actor == "":
		return nil, &MissingFieldError{Field: "actor"}
	case event.Environment == "":
		return nil, &MissingFieldError{Field: "environment"}
	case event.CallbackURL == "":
		return nil, &MissingFieldError{Field: "deployment_callback_url"}
	case event.Repository.FullName == "":
		return nil, &MissingFieldError{Field: "repository"}
	}

	event.RunID = runIDFromCallbackURL(event.CallbackURL)

	return event, nil
}

// resolveActor extracts the triggering identity. The deployment payload actor
// wins: it is attributed to whoever (re-)started the run, whereas the workflow
// author may be someone else entirely. Falls back to the deployment creator
// and finally the webhook sender.
func resolveActor(e *github.DeploymentProtectionRuleEvent) string {
	if actor := actorFromDeploymentPayload(e.GetDeployment()); actor != "" {
		return actor
	}
	if actor := e.GetDeployment().GetCreator().GetLogin(); actor != "" {
		return actor
	}
	return e.GetSender().GetLogin()
}

func actorFromDeploymentPayload(deployment *github.Deployment) string {
	if deployment == nil || len(deployment.Payload) == 0 {
		return ""
	}
	var payload struct {
		Actor json.RawMessage `json:"actor"`
	}
	if err := json.Unmarshal(deployment.Payload, &payload); err != nil || len(payload.Actor) == 0 {
		return ""
	}

	var name string
	if err := json.Unmarshal(payload.Actor, &name); err == nil {
		return name
	}
	var user struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(payload.Actor, &user); err == nil {
		if user.Login != "" {
			return user.Login
		}
		return user.Name
	}
	return ""
}

// CleanUsername normalises identities sourced from loosely-typed payload
// fields: "user@domain.com", "DOMAIN\user" and "path/user" all reduce to
// "user". GitHub logins are usually already clean.
func CleanUsername(user string) string {
	if user == "" {
		return ""
	}
	if i := strings.Index(user, "@"); i >= 0 {
		user = user[:i]
	}
	if i := strings.LastIndex(user, `\`); i >= 0 {
		user = user[i+1:]
	}
	if i := strings.LastIndex(user, "/"); i >= 0 {
		user = user[i+1:]
	}
	return strings.TrimSpace(user)
}

func runIDFromCallbackURL(url string) int64 {
	m := runIDPattern.FindStringSubmatch(url)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
