package internal

import (
	"net/http"
	"strings"
	"time"

	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// Authenticator checks user credentials and tells who the user is
type Authenticator interface {
	// Authenticate returns the identity of the user with the given credentials. When the credentials are wrong, nil
	// is returned without an error
	Authenticate(ctx context.Context, user string, password string) (*models.Authentication, error)
}

// SessionService provides functions for interacting with a user's session
type SessionService interface {
	// Login tries to log-in the user with the given credentials and returns the info about the created session if login
	// was successful
	Login(ctx context.Context, user string, password string) (*SessionInfo, error)
	// Logout logs out a currently active session. Unknown sessions are no error
	Logout(ctx context.Context, sessionID string) error
	// WhoAmI returns information about the current session or nil if the session does not exist (anymore)
	WhoAmI(ctx context.Context, sessionID string) (*SessionInfo, error)
	// GetContents returns the session associated with the given session ID or nil if there is none
	// This service function will be used internally and does not have an endpoint
	GetContents(ctx context.Context, sessionID string, extendExpiry bool) (*models.Session, error)
}

// -- Session service implementation -----------------------------------------------------------------------------------

// SessionInfo is a session information object that is returned upon login. It contains both, the session ID and
// information about the user that is logged in
type SessionInfo struct {
	SessionID    string               `json:"sessionId"`
	UserID       uint                 `json:"userId"`
	UserName     string               `json:"userName"`
	UserFullName string               `json:"userFullName"`
	Role         string               `json:"role"`
	Permissions  models.PermissionSet `json:"permissions"`
	ExpiresAt    time.Time            `json:"expiresAt"`
}

type sessionService struct {
	logger   *logrus.Entry
	sessions repos.SessionRepo
	auth     Authenticator
}

// NewSessionService creates a new session service instance with the provided repository and authenticator
func NewSessionService(sr repos.SessionRepo, auth Authenticator, logger *logrus.Entry) SessionService {
	return &sessionService{
		logger:   logger,
		sessions: sr,
		auth:     auth,
	}
}

// makeSessionInfo creates a session info object from the given session
func makeSessionInfo(sess *models.Session) *SessionInfo {
	return &SessionInfo{
		SessionID:    sess.ID,
		UserID:       sess.Identity.UserID,
		UserName:     sess.Identity.Name,
		UserFullName: sess.Identity.DisplayName,
		Role:         sess.Identity.Role,
		Permissions:  sess.Identity.Permissions,
		ExpiresAt:    sess.ExpiresAt,
	}
}

// Login tries to log-in the user with the given credentials and returns the info about the created session if login
// was successful. A session the call was made with is removed
func (s *sessionService) Login(ctx context.Context, user string, password string) (*SessionInfo, error) {
	user = strings.ToLower(strings.TrimSpace(user))
	loginFailed := MakeError(
		http.StatusForbidden,
		ErrCodeLoginFailed,
		"Login failed",
	)
	if user == "" || password == "" {
		return nil, loginFailed
	}
	auth, err := s.auth.Authenticate(ctx, user, password)
	if err != nil {
		return nil, storeError(s.logger, err, "Failed to authenticate user")
	}
	if auth == nil {
		s.logger.WithField(log.FldUser, user).Info("Login failed")
		return nil, loginFailed
	}
	sess := models.Session{
		Identity:     auth.Identity,
		HardExpiry:   auth.ExpiresAt,
		BackendToken: auth.Token,
	}
	if sess.Identity.Permissions == nil {
		sess.Identity.Permissions = models.PermissionSet{}
	}
	if err := s.sessions.Create(&sess); err != nil {
		s.logger.WithError(err).Error("Failed to create session")
		return nil, MakeError(
			http.StatusInternalServerError,
			ErrCodeRepoError,
			"Failed to create session",
		)
	}
	if prev := ctxhelper.Session(ctx); prev != nil {
		// The new session replaces the one the login was sent with
		if err := s.sessions.Delete(prev.ID); err != nil && err != repos.ErrEntityNotExisting {
			s.logger.WithError(err).Warn("Failed to delete the replaced session")
		}
	}
	s.logger.WithFields(logrus.Fields{
		log.FldUser: sess.Identity.Name,
		log.FldRole: sess.Identity.Role,
	}).Info("User logged in")
	return makeSessionInfo(&sess), nil
}

// Logout logs out a currently active session
func (s *sessionService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(sessionID); err != nil && err != repos.ErrEntityNotExisting {
		s.logger.WithError(err).Error("Failed to delete session")
		return MakeError(
			http.StatusInternalServerError,
			ErrCodeRepoError,
			"Failed to logout. Error in the data store",
		)
	}
	return nil
}

// WhoAmI returns information about the current session
func (s *sessionService) WhoAmI(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.GetContents(ctx, sessionID, false)
	if err != nil || sess == nil {
		return nil, err
	}
	return makeSessionInfo(sess), nil
}

// GetContents returns the session associated with the given session ID
// This service function will be used internally and does not have an endpoint
func (s *sessionService) GetContents(ctx context.Context, sessionID string, extendExpiry bool) (*models.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	sess, err := s.sessions.GetByID(sessionID, extendExpiry)
	if err != nil {
		if err == repos.ErrEntityNotExisting {
			return nil, nil
		}
		s.logger.WithError(err).Error("Failed to retrieve session from repo")
		return nil, MakeError(
			http.StatusInternalServerError,
			ErrCodeRepoError,
			"Failed to retrieve session information from storage",
		)
	}
	return sess, nil
}

// -- Local authentication ---------------------------------------------------------------------------------------------

type localAuthenticator struct {
	users repos.UserRepo
	roles repos.RoleRepo
}

// NewLocalAuthenticator creates an authenticator checking credentials against the local identity store. The
// identity carries the permissions of the user's role at the time of login
func NewLocalAuthenticator(users repos.UserRepo, roles repos.RoleRepo) Authenticator {
	return &localAuthenticator{users, roles}
}

func (a *localAuthenticator) Authenticate(ctx context.Context, user, password string) (*models.Authentication, error) {
	u, err := a.users.GetByCredentials(user, password)
	if err != nil || u == nil {
		return nil, err
	}
	id := models.Identity{
		UserID:      u.ID,
		Name:        u.Name,
		DisplayName: u.FullName,
		Permissions: models.PermissionSet{},
	}
	role, err := a.roles.GetByID(u.RoleID)
	if err != nil {
		if err == repos.ErrEntityNotExisting {
			// Users without role may log in, but see nothing beyond the dashboard
			return &models.Authentication{Identity: id}, nil
		}
		return nil, err
	}
	id.Role = role.Name
	perms, err := a.roles.PermissionsOf(role.ID)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(perms))
	for _, p := range perms {
		tokens = append(tokens, p.Name)
	}
	id.Permissions = models.NewPermissionSet(tokens...)
	return &models.Authentication{Identity: id}, nil
}
