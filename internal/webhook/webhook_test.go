package webhook_test

import (
	"fmt"
	"testing"

	"github.com/isometry/gh-approval-gate/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callbackURL = "https://api.github.com/repos/acme/widgets/actions/runs/1234567890/deployment_protection_rule"

func validPayload() string {
	return fmt.Sprintf(`{
		"action": "requested",
		"environment": "Production",
		"event": "push",
		"deployment_callback_url": %q,
		"deployment": {
			"id": 1,
			"environment": "Production",
			"payload": {"actor": "APZW3PRD_BCP"},
			"creator": {"login": "deployment-creator"}
		},
		"repository": {
			"name": "widgets",
			"full_name": "acme/widgets",
			"owner": {"login": "acme"}
		},
		"installation": {"id": 42},
		"sender": {"login": "webhook-sender"}
	}`, callbackURL)
}

func TestParse_ValidEvent(t *testing.T) {
	event, err := webhook.Parse(webhook.EventType, []byte(validPayload()))
	require.NoError(t, err)

	assert.Equal(t, "requested", event.Action)
	assert.Equal(t, "Production", event.Environment)
	assert.Equal(t, "APZW3PRD_BCP", event.Actor)
	assert.Equal(t, callbackURL, event.CallbackURL)
	assert.Equal(t, "acme/widgets", event.Repository.FullName)
	assert.Equal(t, "acme", event.Repository.Owner)
	assert.Equal(t, "widgets", event.Repository.Name)
	assert.Equal(t, int64(1234567890), event.RunID)
	require.NotNil(t, event.InstallationID)
	assert.Equal(t, int64(42), *event.InstallationID)
}

func TestParse_UnsupportedEventType(t *testing.T) {
	for _, eventType := range []string{"push", "pull_request", "deployment_status", ""} {
		t.Run("event_"+eventType, func(t *testing.T) {
			_, err := webhook.Parse(eventType, []byte(validPayload()))
			assert.ErrorIs(t, err, webhook.ErrUnsupportedEvent)
		})
	}
}

func TestParse_UnsupportedAction(t *testing.T) {
	body := []byte(`{"action": "completed", "environment": "Production"}`)
	_, err := webhook.Parse(webhook.EventType, body)
	assert.ErrorIs(t, err, webhook.ErrUnsupportedEvent)
}

func TestParse_MalformedBody(t *testing.T) {
	_, err := webhook.Parse(webhook.EventType, []byte(`{"action": "requested"`))
	assert.ErrorIs(t, err, webhook.ErrMalformedPayload)
}

func TestParse_MissingFields(t *testing.T) {
	testCases := []struct {
		Name          string
		Body          string
		ExpectedField string
	}{
		{
			Name: "missing_actor",
			Body: fmt.Sprintf(`{
				"action": "requested",
				"environment": "Production",
				"deployment_callback_url": %q,
				"repository": {"full_name": "acme/widgets", "name": "widgets", "owner": {"login": "acme"}}
			}`, callbackURL),
			ExpectedField: "actor",
		},
		{
			Name: "missing_environment",
			Body: fmt.Sprintf(`{
				"action": "requested",
				"deployment_callback_url": %q,
				"repository": {"full_name": "acme/widgets", "name": "widgets", "owner": {"login": "acme"}},
				"sender": {"login": "someone"}
			}`, callbackURL),
			ExpectedField: "environment",
		},
		{
			Name: "missing_callback_url",
			Body: `{
				"action": "requested",
				"environment": "Production",
				"repository": {"full_name": "acme/widgets", "name": "widgets", "owner": {"login": "acme"}},
				"sender": {"login": "someone"}
			}`,
			ExpectedField: "deployment_callback_url",
		},
		{
			Name: "missing_repository",
			Body: fmt.Sprintf(`{
				"action": "requested",
				"environment": "Production",
				"deployment_callback_url": %q,
				"sender": {"login": "someone"}
			}`, callbackURL),
			ExpectedField: "repository",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := webhook.Parse(webhook.EventType, []byte(tc.Body))
			var missing *webhook.MissingFieldError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tc.ExpectedField, missing.Field)
		})
	}
}

func TestParse_ActorResolutionOrder(t *testing.T) {
	testCases := []struct {
		Name          string
		Deployment    string
		ExpectedActor string
	}{
		{
			Name:          "deployment_payload_actor_wins",
			Deployment:    `{"payload": {"actor": "rerun-user"}, "creator": {"login": "creator-user"}}`,
			ExpectedActor: "rerun-user",
		},
		{
			Name:          "payload_actor_as_object",
			Deployment:    `{"payload": {"actor": {"login": "object-user"}}}`,
			ExpectedActor: "object-user",
		},
		{
			Name:          "creator_fallback",
			Deployment:    `{"creator": {"login": "creator-user"}}`,
			ExpectedActor: "creator-user",
		},
		{
			Name:          "sender_fallback",
			Deployment:    `{}`,
			ExpectedActor: "webhook-sender",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			body := fmt.Sprintf(`{
				"action": "requested",
				"environment": "Production",
				"deployment_callback_url": %q,
				"deployment": %s,
				"repository": {"full_name": "acme/widgets", "name": "widgets", "owner": {"login": "acme"}},
				"sender": {"login": "webhook-sender"}
			}`, callbackURL, tc.Deployment)

			event, err := webhook.Parse(webhook.EventType, []byte(body))
			require.NoError(t, err)
			assert.Equal(t, tc.ExpectedActor, event.Actor)
		})
	}
}

func TestCleanUsername(t *testing.T) {
	testCases := []struct {
		Input    string
		Expected string
	}{
		{Input: "user", Expected: "user"},
		{Input: "user@domain.com", Expected: "user"},
		{Input: `DOMAIN\user`, Expected: "user"},
		{Input: "org/user", Expected: "user"},
		{Input: "  user  ", Expected: "user"},
		{Input: "", Expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.Input, func(t *testing.T) {
			assert.Equal(t, tc.Expected, webhook.CleanUsername(tc.Input))
		})
	}
}
