// Package policy maps a triggering actor to an approve/reject decision for a
// pending deployment. Decisions are pure functions of the event and the
// configured policy: no I/O, fully deterministic.
package policy

import (
	"fmt"
	"strings"

	"github.com/isometry/gh-approval-gate/internal/models"
)

// Review comment templates. The rejection text is surfaced verbatim in the
// GitHub UI and is a contractual message, do not reword it.
const (
	rejectedReasonTemplate = "El usuario utilizado para el despliegue no se encuentra autorizado para desplegar en %s"
	approvedReasonTemplate = "Usuario autorizado: %s. Despliegue permitido en %s"
)

// Policy decides whether an actor is allowed to deploy.
type Policy interface {
	IsAuthorized(actor string) bool
}

// SingleUser authorizes exactly one identity, compared case-insensitively.
type SingleUser struct {
	user string
}

// NewSingleUser returns a Policy matching the given identity.
func NewSingleUser(user string) *SingleUser {
	return &SingleUser{user: user}
}

// IsAuthorized reports whether actor matches the authorized identity.
// Case-folded exact match: no wildcards, no substrings.
func (p *SingleUser) IsAuthorized(actor string) bool {
	return actor != "" && strings.EqualFold(actor, p.user)
}

// Users authorizes a set of identities. Drop-in replacement for SingleUser
// when more than one deployer is sanctioned.
type Users struct {
	users []string
}

// NewUsers returns a Policy matching any of the given identities.
func NewUsers(users ...string) *Users {
	return &Users{users: users}
}

// IsAuthorized reports whether actor matches any authorized identity.
func (p *Users) IsAuthorized(actor string) bool {
	if actor == "" {
		return false
	}
	for _, u := range p.users {
		if strings.EqualFold(actor, u) {
			return true
		}
	}
	return false
}

// Decide evaluates the event's actor against the policy and returns the
// immutable decision to record against the pending deployment review.
func Decide(event *models.WebhookEvent, p Policy) models.Decision {
	if p.IsAuthorized(event.Actor) {
		return models.Decision{
			Outcome: models.Approved,
			Reason:  fmt.Sprintf(approvedReasonTemplate, event.Actor, event.Environment),
			Actor:   event.Actor,
		}
	}
	return models.Decision{
		Outcome: models.Rejected,
		Reason:  fmt.Sprintf(rejectedReasonTemplate, event.Environment),
		Actor:   event.Actor,
	}
}
