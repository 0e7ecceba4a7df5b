// Package repos contains the repository interfaces needed in MedStock
// It exists to prevent circular dependencies between the services and the repo implementations
package repos

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/net/context"

	"github.com/derWhity/medstock/internal/models"
)

var (
	// ErrEntityNotExisting is fired by a repository when an entity that is updated or deleted does not exist
	ErrEntityNotExisting = fmt.Errorf("cannot update: Entity does not exist")
	// ErrDuplicate is returned when an entity with the same unique name already exists
	ErrDuplicate = fmt.Errorf("an entity with this name does already exist")
	// ErrWrongPassword is returned by an AccountStore when the current password given for a change does not match
	ErrWrongPassword = fmt.Errorf("the current password is wrong")
)

// UserRepo defines a repository that is able to store, query and authenticate users
type UserRepo interface {
	// Create creates a new user
	Create(u *models.User) error
	// Update updates an existing user
	Update(u *models.User) error
	// Delete removes an existing user from the user storage
	Delete(id uint) error
	// GetByID returns the user with the given ID
	GetByID(id uint) (*models.User, error)
	// GetByName returns the user with the given login name
	GetByName(name string) (*models.User, error)
	// GetByCredentials returns the user which has the given username and password - this is used for login
	// If no active user matches, nil is returned without an error
	GetByCredentials(username string, password string) (*models.User, error)
	// Find searches for users matching the given search string - supports pagination
	Find(search string, offset uint, limit uint) ([]models.User, uint, error)
	// Count returns the total number of users
	Count() (uint, error)
}

// RoleRepo stores roles, permission tokens and their assignments
type RoleRepo interface {
	// Create creates a new role
	Create(r *models.Role) error
	// GetByID returns the role with the given ID
	GetByID(id uint) (*models.Role, error)
	// GetByName returns the role with the given name
	GetByName(name string) (*models.Role, error)
	// List returns all roles ordered by name
	List() ([]models.Role, error)
	// CreatePermission creates a new permission token
	CreatePermission(p *models.Permission) error
	// ListPermissions returns all permission tokens ordered by name
	ListPermissions() ([]models.Permission, error)
	// PermissionsOf returns the permissions assigned to the given role
	PermissionsOf(roleID uint) ([]models.Permission, error)
	// AssignPermissions replaces the permissions of the given role
	AssignPermissions(roleID uint, permissionIDs []uint) error
}

// SessionRepo stores information about active API sessions
type SessionRepo interface {
	// Create stores a new session, assigning its ID and expiry
	Create(sess *models.Session) error
	// GetByID returns the session associated with the given session ID and extends it's expiry if requested
	GetByID(sessionID string, extend bool) (*models.Session, error)
	// Delete removes a session from the session storage. Deleting an unknown session is no error
	Delete(sessionID string) error
}

// RecordRepo stores inventory records of all kinds
type RecordRepo interface {
	// Create creates a new record
	Create(ctx context.Context, r *models.Record) error
	// Update updates the fields of an existing record
	Update(ctx context.Context, r *models.Record) error
	// Delete removes an existing record
	Delete(ctx context.Context, kind string, id uint) error
	// GetByID returns the record of the given kind with the given ID
	GetByID(ctx context.Context, kind string, id uint) (*models.Record, error)
	// Find searches for records of a kind matching the search string - supports pagination
	Find(ctx context.Context, kind string, search string, offset uint, limit uint) ([]models.Record, uint, error)
	// Count returns the number of records of a kind
	Count(ctx context.Context, kind string) (uint, error)
	// CountByDay returns the number of records of a kind created per day since the given time
	CountByDay(ctx context.Context, kind string, since time.Time) ([]models.DayCount, error)
}

// RecordExporter is implemented by record repositories that generate export files themselves
type RecordExporter interface {
	Export(ctx context.Context, kind string) (*models.Export, error)
}

// AccountStore gives users access to their own account data
type AccountStore interface {
	// GetProfile returns the profile of the given user
	GetProfile(ctx context.Context, userID uint) (*models.Profile, error)
	// UpdateProfile stores the changeable parts of a user's profile
	UpdateProfile(ctx context.Context, p *models.Profile) error
	// ChangePassword sets a new password after checking the current one
	ChangePassword(ctx context.Context, userID uint, current, next string) error
}

// -- Helpers for SQLX repos -------------------------------------------------------------------------------------------

// DoRollback rolls back a transaction and catches any error resulting from it while appending the original error
func DoRollback(tx *sqlx.Tx, originalError error) error {
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("doRollback: Transaction rollback failed: %v; Recent error: %v", err, originalError)
	}
	return originalError
}
