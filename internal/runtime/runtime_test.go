package runtime_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/cenkalti/backoff/v4"
	"github.com/isometry/gh-approval-gate/internal/handler"
	"github.com/isometry/gh-approval-gate/internal/models"
	"github.com/isometry/gh-approval-gate/internal/policy"
	"github.com/isometry/gh-approval-gate/internal/runtime"
	"github.com/isometry/gh-approval-gate/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-webhook-secret"

type callbackRecorder struct {
	server *httptest.Server
	hits   atomic.Int32
	bodies []string
	status func(attempt int32) int
}

func newCallbackRecorder(t *testing.T) *callbackRecorder {
	t.Helper()
	rec := &callbackRecorder{
		status: func(int32) int { return http.StatusNoContent },
	}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := rec.hits.Add(1)
		buf, _ := io.ReadAll(r.Body)
		rec.bodies = append(rec.bodies, string(buf))
		code := rec.status(attempt)
		if code >= http.StatusBadRequest {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			fmt.Fprint(w, `{"message": "induced failure"}`)
			return
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (c *callbackRecorder) url() string {
	return c.server.URL + "/repos/acme/widgets/actions/runs/1234567890/deployment_protection_rule"
}

func protectionRulePayload(actor, environment, callbackURL string) string {
	return fmt.Sprintf(`{
		"action": "requested",
		"environment": %q,
		"event": "push",
		"deployment_callback_url": %q,
		"deployment": {
			"id": 1,
			"payload": {"actor": %q}
		},
		"repository": {
			"name": "widgets",
			"full_name": "acme/widgets",
			"owner": {"login": "acme"}
		},
		"sender": {"login": "webhook-sender"}
	}`, environment, callbackURL, actor)
}

func newGateRuntime(t *testing.T, opts ...handler.Option) *runtime.Runtime {
	t.Helper()
	base := []handler.Option{
		handler.WithAuthMode("token"),
		handler.WithToken("dummy-token"),
		handler.WithWebhookSecret(testSecret),
		handler.WithPolicy(policy.NewSingleUser("APZW3PRD_BCP")),
		handler.WithLambdaPayloadType("api-gateway-v2"),
		handler.WithReviewBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		}),
	}
	h, err := handler.NewApprovalHandler(append(base, opts...)...)
	require.NoError(t, err)
	return runtime.NewRuntime(h)
}

func postWebhook(t *testing.T, rt *runtime.Runtime, eventType, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	req.Header.Set("Content-Type", "application/json")
	if sign {
		req.Header.Set("X-Hub-Signature-256", validation.NewWebhookSecret(testSecret).Sign([]byte(body)))
	}
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	return rec
}

func TestEndToEnd_AuthorizedActorApproved(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	// Case differs from the configured user deliberately.
	body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
	rec := postWebhook(t, rt, "deployment_protection_rule", body, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(1), callback.hits.Load())
	assert.Contains(t, callback.bodies[0], `"state":"approved"`)
	assert.Contains(t, callback.bodies[0], "Usuario autorizado: apzw3prd_bcp. Despliegue permitido en Production")
	assert.Contains(t, rec.Body.String(), "approved")
}

func TestEndToEnd_UnauthorizedActorRejected(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	body := protectionRulePayload("intruder", "pre-PROD (eu-west-1)", callback.url())
	rec := postWebhook(t, rt, "deployment_protection_rule", body, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(1), callback.hits.Load())
	assert.Contains(t, callback.bodies[0], `"state":"rejected"`)
	assert.Contains(t, callback.bodies[0], "El usuario utilizado para el despliegue no se encuentra autorizado para desplegar en pre-PROD (eu-west-1)")
}

func TestEndToEnd_InvalidSignatureRejectedBeforeParsing(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "deployment_protection_rule")
	req.Header.Set("X-Hub-Signature-256", "sha256="+strings.Repeat("ab", 32))
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// Nothing may leave the gate on an unverified payload.
	assert.Equal(t, int32(0), callback.hits.Load())
}

func TestEndToEnd_MissingSignatureRejected(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
	rec := postWebhook(t, rt, "deployment_protection_rule", body, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(0), callback.hits.Load())
}

func TestEndToEnd_UnsupportedEventIgnored(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	body := `{"zen": "Design for failure.", "hook_id": 1}`
	rec := postWebhook(t, rt, "ping", body, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(0), callback.hits.Load())
	assert.Contains(t, rec.Body.String(), "event ignored")
}

func TestEndToEnd_MalformedPayload(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	rec := postWebhook(t, rt, "deployment_protection_rule", `{"action": "requested", not json`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(0), callback.hits.Load())
}

func TestEndToEnd_MissingEnvironment(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	body := protectionRulePayload("apzw3prd_bcp", "", callback.url())
	rec := postWebhook(t, rt, "deployment_protection_rule", body, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(0), callback.hits.Load())
	assert.Contains(t, rec.Body.String(), "environment")
}

func TestEndToEnd_TransientCallbackFailures(t *testing.T) {
	callback := newCallbackRecorder(t)
	callback.status = func(int32) int { return http.StatusServiceUnavailable }
	rt := newGateRuntime(t)

	body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
	rec := postWebhook(t, rt, "deployment_protection_rule", body, true)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, int32(3), callback.hits.Load())
}

func TestEndToEnd_TerminalCallbackFailure(t *testing.T) {
	callback := newCallbackRecorder(t)
	callback.status = func(int32) int { return http.StatusNotFound }
	rt := newGateRuntime(t)

	body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
	rec := postWebhook(t, rt, "deployment_protection_rule", body, true)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, int32(1), callback.hits.Load())
}

func TestEndToEnd_RetryRecoversWithinBudget(t *testing.T) {
	callback := newCallbackRecorder(t)
	callback.status = func(attempt int32) int {
		if attempt < 3 {
			return http.StatusBadGateway
		}
		return http.StatusNoContent
	}
	rt := newGateRuntime(t)

	body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
	rec := postWebhook(t, rt, "deployment_protection_rule", body, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(3), callback.hits.Load())
}

func TestEndToEnd_MethodNotAllowed(t *testing.T) {
	rt := newGateRuntime(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEndToEnd_MissingConfigFailsClosed(t *testing.T) {
	testCases := []struct {
		Name   string
		Option handler.Option
	}{
		{Name: "missing_webhook_secret", Option: handler.WithWebhookSecret("")},
		{Name: "missing_policy", Option: handler.WithPolicy(nil)},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			callback := newCallbackRecorder(t)
			rt := newGateRuntime(t, tc.Option)

			body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
			rec := postWebhook(t, rt, "deployment_protection_rule", body, true)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, int32(0), callback.hits.Load())
		})
	}
}

func TestLambda_APIGatewayV2(t *testing.T) {
	callback := newCallbackRecorder(t)
	rt := newGateRuntime(t)

	body := protectionRulePayload("apzw3prd_bcp", "Production", callback.url())
	secret := validation.NewWebhookSecret(testSecret)
	resp, err := rt.Lambda(context.Background(), models.Request{
		Body: body,
		Headers: map[string]string{
			"X-GitHub-Event":      "deployment_protection_rule",
			"X-Hub-Signature-256": secret.Sign([]byte(body)),
		},
	})

	require.NoError(t, err)
	v2, ok := resp.(events.APIGatewayV2HTTPResponse)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, v2.StatusCode)
	assert.Contains(t, v2.Body, "approved")
	assert.Equal(t, int32(1), callback.hits.Load())
}

func TestLambda_UnsupportedPayloadType(t *testing.T) {
	rt := newGateRuntime(t, handler.WithLambdaPayloadType("sqs"))

	_, err := rt.Lambda(context.Background(), models.Request{Body: "{}", Headers: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported lambda payload type")
}
