// Package access decides whether a session may open a page or call an operation
//
// All guard decisions of MedStock go through Policy.Evaluate - the router, the API middleware and the services
// never check roles or permission tokens on their own.
package access

import (
	"fmt"

	"github.com/derWhity/medstock/internal/models"
)

// Level is the kind of check a requirement asks for
type Level uint

const (
	// Public requirements are met by everyone, logged-in or not
	Public Level = iota
	// Guest requirements mark pages meant for users that are not logged in (the login form). They are met by
	// everyone - redirecting logged-in users away is up to the router
	Guest
	// Authenticated requirements need any valid session
	Authenticated
	// AdminOnly requirements need a session with the administrator role
	AdminOnly
	// NeedsPermission requirements need a session holding a specific permission token
	NeedsPermission
)

// Default redirect targets
const (
	LoginPath        = "/"
	NotFoundPath     = "/404"
	NotAvailablePath = "/construccion"
)

// Requirement describes what a session needs to pass a guard
type Requirement struct {
	Level Level `json:"-"`
	// The token checked for NeedsPermission requirements
	Permission string `json:"permission,omitempty"`
	// Pending marks features that have not been built yet. Sessions passing the guard are sent to the
	// not-available page instead
	Pending bool `json:"pending,omitempty"`
}

// PublicAccess returns a requirement that is always met
func PublicAccess() Requirement {
	return Requirement{Level: Public}
}

// GuestAccess returns the requirement for the login page
func GuestAccess() Requirement {
	return Requirement{Level: Guest}
}

// LoggedIn returns a requirement that needs any valid session
func LoggedIn() Requirement {
	return Requirement{Level: Authenticated}
}

// Admin returns a requirement that needs the administrator role
func Admin() Requirement {
	return Requirement{Level: AdminOnly}
}

// Permission returns a requirement that needs the given token. An empty token only needs a valid session
func Permission(token string) Requirement {
	if token == "" {
		return LoggedIn()
	}
	return Requirement{Level: NeedsPermission, Permission: token}
}

// AsPending returns a copy of the requirement marked as not yet available
func (r Requirement) AsPending() Requirement {
	r.Pending = true
	return r
}

// String returns a short description of the requirement used in listings and logs
func (r Requirement) String() string {
	var s string
	switch r.Level {
	case Public:
		s = "public"
	case Guest:
		s = "guest"
	case Authenticated:
		s = "authenticated"
	case AdminOnly:
		s = "admin"
	case NeedsPermission:
		s = fmt.Sprintf("permission:%s", r.Permission)
	default:
		s = fmt.Sprintf("level(%d)", r.Level)
	}
	if r.Pending {
		s += ",pending"
	}
	return s
}

// MarshalText writes the requirement in its String form
func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Decision is the outcome of a guard evaluation
type Decision struct {
	Allowed bool
	// Where to send the session instead. Only set if Allowed is false
	RedirectTo string
	// Reason for a denial, suitable for logs and API errors
	Reason Reason
}

// Reason explains why access has been denied
type Reason uint

const (
	// ReasonNone is the reason of allowed decisions
	ReasonNone Reason = iota
	// ReasonNotLoggedIn is used when the requirement needs a session and there is none
	ReasonNotLoggedIn
	// ReasonNotPermitted is used when the session lacks the role or token
	ReasonNotPermitted
	// ReasonNotAvailable is used for pending features
	ReasonNotAvailable
)

// Policy evaluates requirements against sessions
type Policy struct {
	// Target for sessionless requests
	LoginPath string
	// Target for sessions lacking the role or permission
	NotFoundPath string
	// Target for features not built yet
	NotAvailablePath string
}

// DefaultPolicy returns the policy with the default redirect targets
func DefaultPolicy() Policy {
	return Policy{
		LoginPath:        LoginPath,
		NotFoundPath:     NotFoundPath,
		NotAvailablePath: NotAvailablePath,
	}
}

func (p Policy) deny(target string, reason Reason) Decision {
	return Decision{Allowed: false, RedirectTo: target, Reason: reason}
}

// Evaluate decides if the given session (nil if nobody is logged in) meets the requirement
func (p Policy) Evaluate(sess *models.Session, req Requirement) Decision {
	switch req.Level {
	case Public, Guest:
		// Nothing to check
	case Authenticated, AdminOnly, NeedsPermission:
		if sess == nil {
			return p.deny(p.LoginPath, ReasonNotLoggedIn)
		}
		if req.Level == AdminOnly && !sess.IsAdmin() {
			return p.deny(p.NotFoundPath, ReasonNotPermitted)
		}
		if req.Level == NeedsPermission && !sess.UserCan(req.Permission) {
			return p.deny(p.NotFoundPath, ReasonNotPermitted)
		}
	default:
		// Unknown levels never pass
		return p.deny(p.NotFoundPath, ReasonNotPermitted)
	}
	if req.Pending {
		return p.deny(p.NotAvailablePath, ReasonNotAvailable)
	}
	return Decision{Allowed: true}
}

// Evaluate decides using the default policy
func Evaluate(sess *models.Session, req Requirement) Decision {
	return DefaultPolicy().Evaluate(sess, req)
}
