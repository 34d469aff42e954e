// Package models holds the request-scoped value objects exchanged between the
// pipeline stages. None of them carry mutable shared state.
package models

// Request is a transport-agnostic inbound request: the raw body and the
// headers, with lowercase keys to match AWS Lambda proxy requests.
type Request struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Response is the transport-agnostic outcome of processing a request.
type Response struct {
	Body       string            `json:"body,omitempty"`
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// RepositoryContext identifies the repository an event originated from.
// Used for review addressing and audit messages only.
type RepositoryContext struct {
	Owner    string
	Name     string
	FullName string
}

// WebhookEvent is the typed projection of a deployment_protection_rule
// payload. Actor is the triggering identity, already cleaned up.
type WebhookEvent struct {
	Action         string
	Environment    string
	Actor          string
	Repository     RepositoryContext
	RunID          int64
	CallbackURL    string
	InstallationID *int64
}

// Outcome is the decision taken for a pending deployment. The values double
// as the `state` field of the deployment protection rule review API.
type Outcome string

const (
	// Approved allows the pending deployment to proceed.
	Approved Outcome = "approved"
	// Rejected blocks the pending deployment.
	Rejected Outcome = "rejected"
)

// Decision is the immutable result of evaluating an actor against policy.
type Decision struct {
	Outcome Outcome
	// Reason carries the review comment. Mandatory for rejections.
	Reason string
	// Actor echoes the evaluated identity for audit purposes.
	Actor string
}
