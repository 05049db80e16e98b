// Package guard decides whether a navigation target may render for the
// session currently resident in the client.
//
// Evaluation is synchronous and never fetches: a session that is still being
// hydrated is treated as anonymous until hydration completes.
package guard

import (
	"fmt"
	"strings"

	"github.com/artmarket/session-sync/internal/domain/model"
)

// Decision is the outcome of a guard evaluation.
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToMain
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "Allow"
	case RedirectToLogin:
		return "RedirectToLogin"
	case RedirectToMain:
		return "RedirectToMain"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Requirement is what a view demands of the session.
type Requirement int

const (
	Public Requirement = iota
	Authenticated
	Admin
)

func (r Requirement) String() string {
	switch r {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case Admin:
		return "admin"
	default:
		return fmt.Sprintf("requirement(%d)", int(r))
	}
}

// ParseRequirement maps a textual requirement (case-insensitive) to a Requirement.
func ParseRequirement(s string) (Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public", "":
		return Public, nil
	case "authenticated", "auth", "protected":
		return Authenticated, nil
	case "admin":
		return Admin, nil
	default:
		return Public, fmt.Errorf("guard: unknown requirement %q", s)
	}
}

// Evaluate is the pure decision function.
func Evaluate(s model.Session, req Requirement) Decision {
	if req == Public {
		return Allow
	}
	if !s.Authenticated() {
		return RedirectToLogin
	}
	if req == Admin && s.Role != model.RoleAdmin {
		return RedirectToMain
	}
	return Allow
}

// SessionSource exposes the resident session.
type SessionSource interface {
	Snapshot() model.Session
}

// Guard evaluates requirements against a live session source.
type Guard struct {
	sessions SessionSource
}

func New(sessions SessionSource) *Guard {
	return &Guard{sessions: sessions}
}

// Check evaluates req against the session resident at call time.
func (g *Guard) Check(req Requirement) Decision {
	return Evaluate(g.sessions.Snapshot(), req)
}
