package internal

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// NewUser is the request for creating a user in the local identity store
type NewUser struct {
	Name     string `json:"name" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"required,max=128"`
	Email    string `json:"email" validate:"omitempty,email,max=128"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	// Name of the role - defaults to the regular user role
	Role string `json:"role"`
}

// NewPermission is the request for creating a permission token
type NewPermission struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// UserInfo is a user along with the name of its role
type UserInfo struct {
	models.User
	Role string `json:"role"`
}

// DirectoryService lets administrators manage the local identity store
type DirectoryService interface {
	// ListUsers searches for users - supports pagination
	ListUsers(ctx context.Context, search Search) ([]UserInfo, uint, error)
	// CreateUser creates a new active user
	CreateUser(ctx context.Context, nu NewUser) (*UserInfo, error)
	// DeleteUser removes a user. Administrators cannot delete themselves
	DeleteUser(ctx context.Context, id uint) error
	// CountUsers returns the number of users
	CountUsers(ctx context.Context) (uint, error)
	// ListRoles returns all roles
	ListRoles(ctx context.Context) ([]models.Role, error)
	// RolePermissions returns the permissions assigned to a role
	RolePermissions(ctx context.Context, roleID uint) ([]models.Permission, error)
	// ListPermissions returns all known permission tokens
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	// CreatePermission creates a new permission token
	CreatePermission(ctx context.Context, np NewPermission) (*models.Permission, error)
	// AssignPermissions replaces the permissions of a role. Sessions created before keep their permissions
	AssignPermissions(ctx context.Context, roleID uint, permissionIDs []uint) ([]models.Permission, error)
}

// -- Directory service implementation ---------------------------------------------------------------------------------

type directoryService struct {
	users     repos.UserRepo
	roles     repos.RoleRepo
	policy    access.Policy
	available bool
	logger    *logrus.Entry
}

// NewDirectoryService creates a new directory service instance. When the identity store is not local, every function
// reports that it is not available
func NewDirectoryService(
	users repos.UserRepo,
	roles repos.RoleRepo,
	policy access.Policy,
	available bool,
	logger *logrus.Entry,
) DirectoryService {
	return &directoryService{users, roles, policy, available, logger}
}

var (
	errDirectoryNotAvailable = MakeError(
		http.StatusNotImplemented,
		ErrCodeNotAvailable,
		"Users and roles are managed by the inventory API",
	)
	errRoleNotFound = MakeError(http.StatusNotFound, ErrCodeRoleNotFound, "The role does not exist")
)

// guard checks if the session of the current call belongs to an administrator
func (s *directoryService) guard(ctx context.Context) (*models.Session, error) {
	sess := ctxhelper.Session(ctx)
	d := s.policy.Evaluate(sess, access.Admin())
	switch {
	case !d.Allowed && d.Reason == access.ReasonNotLoggedIn:
		return nil, ErrNotLoggedIn
	case !d.Allowed:
		return nil, ErrNotPermitted
	case !s.available:
		return nil, errDirectoryNotAvailable
	}
	return sess, nil
}

func (s *directoryService) roleNames() (map[uint]string, error) {
	roles, err := s.roles.List()
	if err != nil {
		return nil, err
	}
	ret := make(map[uint]string, len(roles))
	for _, r := range roles {
		ret[r.ID] = r.Name
	}
	return ret, nil
}

// ListUsers searches for users - supports pagination
func (s *directoryService) ListUsers(ctx context.Context, search Search) ([]UserInfo, uint, error) {
	if _, err := s.guard(ctx); err != nil {
		return nil, 0, err
	}
	users, total, err := s.users.Find(search.Search, search.Offset, search.Limit)
	if err != nil {
		return nil, 0, storeError(s.logger, err, "Failed to search for users")
	}
	names, err := s.roleNames()
	if err != nil {
		return nil, 0, storeError(s.logger, err, "Failed to load roles")
	}
	ret := make([]UserInfo, 0, len(users))
	for _, u := range users {
		ret = append(ret, UserInfo{User: u, Role: names[u.RoleID]})
	}
	return ret, total, nil
}

// CreateUser creates a new active user
func (s *directoryService) CreateUser(ctx context.Context, nu NewUser) (*UserInfo, error) {
	if _, err := s.guard(ctx); err != nil {
		return nil, err
	}
	nu.Name = strings.ToLower(strings.TrimSpace(nu.Name))
	nu.FullName = strings.TrimSpace(nu.FullName)
	nu.Email = strings.TrimSpace(nu.Email)
	if err := validateStruct(nu); err != nil {
		return nil, err
	}
	if nu.Role == "" {
		nu.Role = models.RoleUser
	}
	role, err := s.roles.GetByName(nu.Role)
	if err != nil {
		if isNotExisting(err) {
			return nil, errRoleNotFound
		}
		return nil, storeError(s.logger, err, "Failed to load role")
	}
	u := models.User{
		Name:     nu.Name,
		FullName: nu.FullName,
		Email:    nu.Email,
		Phone:    strings.TrimSpace(nu.Phone),
		RoleID:   role.ID,
		Active:   true,
	}
	if err := u.SetPassword(nu.Password); err != nil {
		return nil, storeError(s.logger, err, "Failed to hash password")
	}
	if err := s.users.Create(&u); err != nil {
		if err == repos.ErrDuplicate {
			return nil, MakeError(
				http.StatusConflict,
				ErrCodeAlreadyExists,
				fmt.Sprintf("There already is a user named '%s'", nu.Name),
			)
		}
		return nil, storeError(s.logger, err, "Failed to create user")
	}
	s.logger.WithFields(logrus.Fields{
		log.FldUser: u.Name,
		log.FldRole: role.Name,
	}).Info("User created")
	return &UserInfo{User: u, Role: role.Name}, nil
}

// DeleteUser removes a user. Administrators cannot delete themselves
func (s *directoryService) DeleteUser(ctx context.Context, id uint) error {
	sess, err := s.guard(ctx)
	if err != nil {
		return err
	}
	if sess.Identity.UserID == id {
		return MakeError(http.StatusBadRequest, ErrCodeNotPermitted, "You cannot delete your own account")
	}
	if err := s.users.Delete(id); err != nil {
		if isNotExisting(err) {
			return MakeError(http.StatusNotFound, ErrCodeUserNotFound, fmt.Sprintf("There is no user %d", id))
		}
		return storeError(s.logger, err, "Failed to delete user")
	}
	s.logger.WithField(log.FldID, id).Info("User deleted")
	return nil
}

// CountUsers returns the number of users
func (s *directoryService) CountUsers(ctx context.Context) (uint, error) {
	if _, err := s.guard(ctx); err != nil {
		return 0, err
	}
	num, err := s.users.Count()
	if err != nil {
		return 0, storeError(s.logger, err, "Failed to count users")
	}
	return num, nil
}

// ListRoles returns all roles
func (s *directoryService) ListRoles(ctx context.Context) ([]models.Role, error) {
	if _, err := s.guard(ctx); err != nil {
		return nil, err
	}
	roles, err := s.roles.List()
	if err != nil {
		return nil, storeError(s.logger, err, "Failed to load roles")
	}
	return roles, nil
}

// RolePermissions returns the permissions assigned to a role
func (s *directoryService) RolePermissions(ctx context.Context, roleID uint) ([]models.Permission, error) {
	if _, err := s.guard(ctx); err != nil {
		return nil, err
	}
	if _, err := s.roles.GetByID(roleID); err != nil {
		if isNotExisting(err) {
			return nil, errRoleNotFound
		}
		return nil, storeError(s.logger, err, "Failed to load role")
	}
	perms, err := s.roles.PermissionsOf(roleID)
	if err != nil {
		return nil, storeError(s.logger, err, "Failed to load permissions")
	}
	return perms, nil
}

// ListPermissions returns all known permission tokens
func (s *directoryService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	if _, err := s.guard(ctx); err != nil {
		return nil, err
	}
	perms, err := s.roles.ListPermissions()
	if err != nil {
		return nil, storeError(s.logger, err, "Failed to load permissions")
	}
	return perms, nil
}

// CreatePermission creates a new permission token
func (s *directoryService) CreatePermission(ctx context.Context, np NewPermission) (*models.Permission, error) {
	if _, err := s.guard(ctx); err != nil {
		return nil, err
	}
	np.Name = strings.TrimSpace(np.Name)
	if err := validateStruct(np); err != nil {
		return nil, err
	}
	p := models.Permission{Name: np.Name, Description: strings.TrimSpace(np.Description)}
	if err := s.roles.CreatePermission(&p); err != nil {
		if err == repos.ErrDuplicate {
			return nil, MakeError(
				http.StatusConflict,
				ErrCodeAlreadyExists,
				fmt.Sprintf("The permission '%s' does already exist", np.Name),
			)
		}
		return nil, storeError(s.logger, err, "Failed to create permission")
	}
	s.logger.WithField(log.FldPermission, p.Name).Info("Permission created")
	return &p, nil
}

// AssignPermissions replaces the permissions of a role and returns the new assignment
func (s *directoryService) AssignPermissions(
	ctx context.Context,
	roleID uint,
	permissionIDs []uint,
) ([]models.Permission, error) {
	if _, err := s.guard(ctx); err != nil {
		return nil, err
	}
	if err := s.roles.AssignPermissions(roleID, permissionIDs); err != nil {
		if isNotExisting(err) {
			return nil, MakeError(http.StatusNotFound, ErrCodeRoleNotFound, "The role or a permission does not exist")
		}
		return nil, storeError(s.logger, err, "Failed to assign permissions")
	}
	s.logger.WithFields(logrus.Fields{
		log.FldID:         roleID,
		log.FldPermission: permissionIDs,
	}).Info("Permissions assigned")
	return s.RolePermissions(ctx, roleID)
}
