package internal

import (
	"net/http"
	"strings"

	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// ProfileUpdate contains the parts of the profile a user may change
type ProfileUpdate struct {
	FullName string `json:"fullName" validate:"required,max=128"`
	Email    string `json:"email" validate:"omitempty,email,max=128"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

// PasswordChange is the request for changing the own password
type PasswordChange struct {
	Current string `json:"current" validate:"required"`
	New     string `json:"new" validate:"required,min=8"`
	Confirm string `json:"confirm" validate:"eqfield=New"`
}

// ProfileService gives the logged-in user access to the own account
type ProfileService interface {
	// GetProfile returns the profile of the session's user
	GetProfile(ctx context.Context) (*models.Profile, error)
	// UpdateProfile changes the profile of the session's user
	UpdateProfile(ctx context.Context, upd ProfileUpdate) (*models.Profile, error)
	// ChangePassword changes the password of the session's user
	ChangePassword(ctx context.Context, change PasswordChange) error
}

// -- Profile service implementation -----------------------------------------------------------------------------------

type profileService struct {
	store  repos.AccountStore
	logger *logrus.Entry
}

// NewProfileService creates a new profile service instance on top of the given account store
func NewProfileService(store repos.AccountStore, logger *logrus.Entry) ProfileService {
	return &profileService{store, logger}
}

// GetProfile returns the profile of the session's user
func (s *profileService) GetProfile(ctx context.Context) (*models.Profile, error) {
	sess := ctxhelper.Session(ctx)
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	p, err := s.store.GetProfile(ctx, sess.Identity.UserID)
	if err != nil {
		if isNotExisting(err) {
			return nil, MakeError(http.StatusNotFound, ErrCodeUserNotFound, "The user of this session does not exist")
		}
		return nil, storeError(s.logger, err, "Failed to load profile")
	}
	return p, nil
}

// UpdateProfile changes the profile of the session's user
func (s *profileService) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*models.Profile, error) {
	sess := ctxhelper.Session(ctx)
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	upd.FullName = strings.TrimSpace(upd.FullName)
	upd.Email = strings.TrimSpace(upd.Email)
	upd.Phone = strings.TrimSpace(upd.Phone)
	if err := validateStruct(upd); err != nil {
		return nil, err
	}
	p, err := s.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	p.FullName = upd.FullName
	p.Email = upd.Email
	p.Phone = upd.Phone
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, storeError(s.logger, err, "Failed to update profile")
	}
	s.logger.WithField(log.FldUser, sess.Identity.Name).Info("Profile updated")
	return p, nil
}

// ChangePassword changes the password of the session's user. The request is validated before the store is asked
func (s *profileService) ChangePassword(ctx context.Context, change PasswordChange) error {
	sess := ctxhelper.Session(ctx)
	if sess == nil {
		return ErrNotLoggedIn
	}
	if err := validateStruct(change); err != nil {
		return err
	}
	err := s.store.ChangePassword(ctx, sess.Identity.UserID, change.Current, change.New)
	if err != nil {
		if errors.Cause(err) == repos.ErrWrongPassword {
			return MakeError(http.StatusForbidden, ErrCodeWrongPassword, "The current password is wrong")
		}
		return storeError(s.logger, err, "Failed to change password")
	}
	s.logger.WithField(log.FldUser, sess.Identity.Name).Info("Password changed")
	return nil
}

// -- Local account store ----------------------------------------------------------------------------------------------

type localAccountStore struct {
	users repos.UserRepo
	roles repos.RoleRepo
}

// NewLocalAccountStore creates an account store working on the local identity store
func NewLocalAccountStore(users repos.UserRepo, roles repos.RoleRepo) repos.AccountStore {
	return &localAccountStore{users, roles}
}

func (a *localAccountStore) GetProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	u, err := a.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	p := &models.Profile{
		ID:       u.ID,
		Name:     u.Name,
		FullName: u.FullName,
		Email:    u.Email,
		Phone:    u.Phone,
	}
	role, err := a.roles.GetByID(u.RoleID)
	switch {
	case err == nil:
		p.Role = role.Name
	case err != repos.ErrEntityNotExisting:
		return nil, err
	}
	return p, nil
}

func (a *localAccountStore) UpdateProfile(ctx context.Context, p *models.Profile) error {
	u, err := a.users.GetByID(p.ID)
	if err != nil {
		return err
	}
	u.FullName = p.FullName
	u.Email = p.Email
	u.Phone = p.Phone
	return a.users.Update(u)
}

func (a *localAccountStore) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	u, err := a.users.GetByID(userID)
	if err != nil {
		return err
	}
	if u.CheckPassword(current) != nil {
		return repos.ErrWrongPassword
	}
	if err := u.SetPassword(next); err != nil {
		return err
	}
	return a.users.Update(u)
}
