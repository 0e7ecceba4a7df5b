package models

import (
	"time"
)

// Identity describes the authenticated user a session belongs to
type Identity struct {
	// Internal user ID (or the ID the remote API assigned)
	UserID uint `json:"id"`
	// The user name used to log-in
	Name string `json:"userName"`
	// The full user name for display reasons
	DisplayName string `json:"fullName"`
	// The name of the user's role
	Role string `json:"role"`
	// The permission tokens granted to the user when the session was created
	Permissions PermissionSet `json:"permissions"`
}

// IsAdmin checks if the identity holds the administrator role
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Session contains data about an active API session
type Session struct {
	// The session ID (the API key that identifies this session)
	ID string
	// The user that has logged-in for this session
	Identity Identity
	// When will the session expire?
	ExpiresAt time.Time
	// The session can never be extended beyond this point in time. Zero means no limit
	HardExpiry time.Time
	// The bearer token the remote API issued for this session - empty when using the local identity store
	BackendToken string
}

// Expired checks if the session has already expired
func (s *Session) Expired() bool {
	now := time.Now()
	if !s.HardExpiry.IsZero() && s.HardExpiry.Before(now) {
		return true
	}
	return s.ExpiresAt.Before(now)
}

// Extend moves the expiry of the session to the given duration from now without passing the hard expiry
func (s *Session) Extend(lifetime time.Duration) {
	s.ExpiresAt = time.Now().Add(lifetime)
	if !s.HardExpiry.IsZero() && s.ExpiresAt.After(s.HardExpiry) {
		s.ExpiresAt = s.HardExpiry
	}
}

// UserCan checks if the user in this session has the given permission
func (s *Session) UserCan(permission string) bool {
	return s.Identity.Permissions.Has(permission)
}

// IsAdmin checks if the user in this session is an administrator
func (s *Session) IsAdmin() bool {
	return s.Identity.IsAdmin()
}

// Authentication is the result of a successful credential check
type Authentication struct {
	Identity Identity
	// Bearer token for the remote API, if any
	Token string
	// Expiry of the token. Zero if the token does not expire or there is no token
	ExpiresAt time.Time
}
