// Package sqlite contains a repository for user accounts that stores its data inside a SQLite database
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	userFields = `name, passwordHash, fullName, email, phone, roleId, active, createdAt, updatedAt`
	userSelect = `SELECT id, ` + userFields + ` FROM Users`
)

// UserRepo is a user repository that stores its data inside a SQLite database
type UserRepo struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

// New creates a new UserRepo instance with the given DB and logger instances
func New(db *sqlx.DB, logger *logrus.Entry) *UserRepo {
	return &UserRepo{db, logger}
}

// isUniqueViolation checks if the error has been caused by a UNIQUE constraint
func isUniqueViolation(err error) bool {
	if e, ok := err.(sqlite3.Error); ok {
		return e.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// -- Methods ----------------------------------------------------------------------------------------------------------

// Create creates a new user
func (r *UserRepo) Create(u *models.User) error {
	u.Name = strings.ToLower(strings.TrimSpace(u.Name))
	r.logger.WithField(log.FldUser, u.Name).Debug("Adding new user")
	query := fmt.Sprintf(
		"INSERT INTO Users(%s) VALUES(?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))",
		userFields,
	)
	res, err := r.db.Exec(query, u.Name, u.PasswordHash, u.FullName, u.Email, u.Phone, u.RoleID, u.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return repos.ErrDuplicate
		}
		return err
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	var id int64
	if id, err = res.LastInsertId(); err == nil {
		u.ID = uint(id)
	}
	return err
}

// Update updates an existing user
func (r *UserRepo) Update(u *models.User) error {
	r.logger.WithField(log.FldID, u.ID).Debug("Updating user")
	query := `UPDATE
				Users
			SET
				passwordHash = ?,
				fullName = ?,
				email = ?,
				phone = ?,
				roleId = ?,
				active = ?,
				updatedAt = datetime('now')
			WHERE id = ?`
	res, err := r.db.Exec(query, u.PasswordHash, u.FullName, u.Email, u.Phone, u.RoleID, u.Active, u.ID)
	if err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	if num, _ := res.RowsAffected(); num == 0 {
		return repos.ErrEntityNotExisting
	}
	return nil
}

// Delete removes an existing user from the user storage
func (r *UserRepo) Delete(id uint) error {
	r.logger.WithField(log.FldID, id).Debug("Deleting user")
	res, err := r.db.Exec("DELETE FROM Users WHERE id = ?", id)
	if err != nil {
		return err
	}
	if num, _ := res.RowsAffected(); num == 0 {
		return repos.ErrEntityNotExisting
	}
	return nil
}

func (r *UserRepo) getOne(query string, args ...interface{}) (*models.User, error) {
	var u models.User
	if err := r.db.Get(&u, query, args...); err != nil {
		if err == sql.ErrNoRows {
			// Nothing found
			return nil, repos.ErrEntityNotExisting
		}
		return nil, err
	}
	return &u, nil
}

// GetByID returns the user with the given ID
func (r *UserRepo) GetByID(id uint) (*models.User, error) {
	return r.getOne(userSelect+" WHERE id = ?", id)
}

// GetByName returns the user with the given login name
func (r *UserRepo) GetByName(name string) (*models.User, error) {
	return r.getOne(userSelect+" WHERE name = ?", strings.ToLower(strings.TrimSpace(name)))
}

// GetByCredentials returns the user which has the given username and password - this is used for login
func (r *UserRepo) GetByCredentials(username string, password string) (*models.User, error) {
	u, err := r.GetByName(username)
	if err != nil {
		if err == repos.ErrEntityNotExisting {
			return nil, nil
		}
		return nil, err
	}
	if !u.Active || u.CheckPassword(password) != nil {
		return nil, nil
	}
	return u, nil
}

// Find searches for users matching the given search string - supports pagination
func (r *UserRepo) Find(search string, offset uint, limit uint) ([]models.User, uint, error) {
	if limit == 0 {
		limit = 50
	}
	r.logger.WithFields(logrus.Fields{
		log.FldSearch: search,
		log.FldOffset: offset,
		log.FldLimit:  limit,
	}).Debug("Searching for users")
	search = "%" + search + "%"
	ret := []models.User{}
	query := userSelect + " WHERE name LIKE $1 OR fullName LIKE $1 OR email LIKE $1 ORDER BY name LIMIT $2 OFFSET $3"
	if err := r.db.Select(&ret, query, search, limit, offset); err != nil {
		r.logger.WithError(err).Error("Failed to query users")
		return nil, 0, err
	}
	var numRows uint
	query = "SELECT COUNT(*) FROM Users WHERE name LIKE $1 OR fullName LIKE $1 OR email LIKE $1"
	if err := r.db.Get(&numRows, query, search); err != nil {
		return nil, 0, err
	}
	return ret, numRows, nil
}

// Count returns the total number of users
func (r *UserRepo) Count() (uint, error) {
	var num uint
	err := r.db.Get(&num, "SELECT COUNT(*) FROM Users")
	return num, err
}
