// Package sqlite contains a repository for roles and permissions that stores its data inside a SQLite database
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	roleSelect       = `SELECT id, name, description FROM Roles`
	permissionSelect = `SELECT id, name, description FROM Permissions`
)

// RoleRepo is a role repository that stores its data inside a SQLite database
type RoleRepo struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

// New creates a new RoleRepo instance with the given DB and logger instances
func New(db *sqlx.DB, logger *logrus.Entry) *RoleRepo {
	return &RoleRepo{db, logger}
}

func insertErr(err error) error {
	if e, ok := err.(sqlite3.Error); ok && e.ExtendedCode == sqlite3.ErrConstraintUnique {
		return repos.ErrDuplicate
	}
	return err
}

// -- Methods ----------------------------------------------------------------------------------------------------------

// Create creates a new role
func (r *RoleRepo) Create(role *models.Role) error {
	role.Name = strings.TrimSpace(role.Name)
	r.logger.WithField(log.FldRole, role.Name).Debug("Adding new role")
	res, err := r.db.Exec("INSERT INTO Roles(name, description) VALUES(?, ?)", role.Name, role.Description)
	if err != nil {
		return insertErr(err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		role.ID = uint(id)
	}
	return err
}

func (r *RoleRepo) getRole(query string, arg interface{}) (*models.Role, error) {
	var role models.Role
	if err := r.db.Get(&role, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, repos.ErrEntityNotExisting
		}
		return nil, err
	}
	return &role, nil
}

// GetByID returns the role with the given ID
func (r *RoleRepo) GetByID(id uint) (*models.Role, error) {
	return r.getRole(roleSelect+" WHERE id = ?", id)
}

// GetByName returns the role with the given name
func (r *RoleRepo) GetByName(name string) (*models.Role, error) {
	return r.getRole(roleSelect+" WHERE name = ?", strings.TrimSpace(name))
}

// List returns all roles ordered by name
func (r *RoleRepo) List() ([]models.Role, error) {
	ret := []models.Role{}
	if err := r.db.Select(&ret, roleSelect+" ORDER BY name"); err != nil {
		return nil, err
	}
	return ret, nil
}

// CreatePermission creates a new permission token
func (r *RoleRepo) CreatePermission(p *models.Permission) error {
	p.Name = strings.TrimSpace(p.Name)
	r.logger.WithField(log.FldPermission, p.Name).Debug("Adding new permission")
	res, err := r.db.Exec("INSERT INTO Permissions(name, description) VALUES(?, ?)", p.Name, p.Description)
	if err != nil {
		return insertErr(err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		p.ID = uint(id)
	}
	return err
}

// ListPermissions returns all permission tokens ordered by name
func (r *RoleRepo) ListPermissions() ([]models.Permission, error) {
	ret := []models.Permission{}
	if err := r.db.Select(&ret, permissionSelect+" ORDER BY name"); err != nil {
		return nil, err
	}
	return ret, nil
}

// PermissionsOf returns the permissions assigned to the given role
func (r *RoleRepo) PermissionsOf(roleID uint) ([]models.Permission, error) {
	query := `SELECT
				p.id AS id,
				p.name AS name,
				p.description AS description
			FROM
				Permissions p
			JOIN
				RolePermissions rp
			ON
				rp.permissionId = p.id
			WHERE
				rp.roleId = ?
			ORDER BY p.name`
	ret := []models.Permission{}
	if err := r.db.Select(&ret, query, roleID); err != nil {
		return nil, err
	}
	return ret, nil
}

// AssignPermissions replaces the permissions of the given role
func (r *RoleRepo) AssignPermissions(roleID uint, permissionIDs []uint) error {
	r.logger.WithFields(logrus.Fields{
		log.FldID:         roleID,
		log.FldPermission: permissionIDs,
	}).Debug("Assigning permissions")
	if _, err := r.GetByID(roleID); err != nil {
		return err
	}
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("AssignPermissions: Failed to start transaction: %v", err)
	}
	if _, err = tx.Exec("DELETE FROM RolePermissions WHERE roleId = ?", roleID); err != nil {
		return repos.DoRollback(tx, err)
	}
	for _, permID := range permissionIDs {
		var num uint
		if err = tx.Get(&num, "SELECT COUNT(*) FROM Permissions WHERE id = ?", permID); err != nil {
			return repos.DoRollback(tx, err)
		}
		if num == 0 {
			return repos.DoRollback(tx, repos.ErrEntityNotExisting)
		}
		query := "INSERT OR IGNORE INTO RolePermissions(roleId, permissionId) VALUES(?, ?)"
		if _, err = tx.Exec(query, roleID, permID); err != nil {
			return repos.DoRollback(tx, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("AssignPermissions: Failed to commit transaction: %v", err)
	}
	return nil
}
