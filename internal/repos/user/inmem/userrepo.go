// Package inmem provides a user repository that works from memory.
package inmem

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
)

// UserRepo provides a simple in-memory user storage
type UserRepo struct {
	sync.RWMutex
	users map[uint]models.User
	// The maximum user ID currently in the storage
	maxUserID uint
}

// New creates a new user repository instance
func New() *UserRepo {
	return &UserRepo{
		users: make(map[uint]models.User),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Create creates a new user. IDs are assigned in ascending order, names must be unique
func (r *UserRepo) Create(u *models.User) error {
	r.Lock()
	defer r.Unlock()
	u.Name = normalizeName(u.Name)
	for _, existing := range r.users {
		if existing.Name == u.Name {
			return repos.ErrDuplicate
		}
	}
	if u.ID > 0 {
		if _, ok := r.users[u.ID]; ok {
			return repos.ErrDuplicate
		}
	} else {
		// ID is 0 - assign a new one
		u.ID = r.maxUserID + 1
	}
	if r.maxUserID < u.ID {
		// We have a new highest user ID
		r.maxUserID = u.ID
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = *u
	return nil
}

// Update updates an existing user. The login name cannot be changed
func (r *UserRepo) Update(u *models.User) error {
	r.Lock()
	defer r.Unlock()
	existing, ok := r.users[u.ID]
	if !ok {
		return repos.ErrEntityNotExisting
	}
	u.Name = existing.Name
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now()
	r.users[u.ID] = *u
	return nil
}

// Delete removes an existing user from the user storage
func (r *UserRepo) Delete(id uint) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.users[id]; !ok {
		return repos.ErrEntityNotExisting
	}
	delete(r.users, id)
	return nil
}

// GetByID returns the user with the given ID
func (r *UserRepo) GetByID(id uint) (*models.User, error) {
	r.RLock()
	defer r.RUnlock()
	if u, ok := r.users[id]; ok {
		// Copy the user
		ret := u
		return &ret, nil
	}
	return nil, repos.ErrEntityNotExisting
}

// GetByName returns the user with the given login name
func (r *UserRepo) GetByName(name string) (*models.User, error) {
	name = normalizeName(name)
	r.RLock()
	defer r.RUnlock()
	for _, u := range r.users {
		if u.Name == name {
			ret := u // copy
			return &ret, nil
		}
	}
	return nil, repos.ErrEntityNotExisting
}

// GetByCredentials returns the active user which has the given username and password - this is used for login
func (r *UserRepo) GetByCredentials(username string, password string) (*models.User, error) {
	u, err := r.GetByName(username)
	if err != nil {
		return nil, nil
	}
	if !u.Active || u.CheckPassword(password) != nil {
		return nil, nil
	}
	return u, nil
}

// Find searches for users matching the given search string - supports pagination. Results are ordered by name
func (r *UserRepo) Find(search string, offset uint, limit uint) ([]models.User, uint, error) {
	if limit == 0 {
		limit = 50
	}
	search = strings.ToLower(search)
	r.RLock()
	matches := []models.User{}
	for _, u := range r.users {
		if strings.Contains(u.Name, search) ||
			strings.Contains(strings.ToLower(u.FullName), search) ||
			strings.Contains(strings.ToLower(u.Email), search) {
			matches = append(matches, u)
		}
	}
	r.RUnlock()
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	total := uint(len(matches))
	if offset >= total {
		return []models.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matches[offset:end], total, nil
}

// Count returns the total number of users
func (r *UserRepo) Count() (uint, error) {
	r.RLock()
	defer r.RUnlock()
	return uint(len(r.users)), nil
}
