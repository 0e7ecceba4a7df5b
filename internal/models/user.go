package models

import (
	"fmt"
	"time"

	"github.com/elithrar/simple-scrypt"
)

// User is an account of the local identity store
type User struct {
	// Internal user ID
	ID uint `db:"id" json:"id"`
	// The user name used to log-in
	Name string `db:"name" json:"name"`
	// The hashed password for authentication
	PasswordHash string `db:"passwordHash" json:"-"`
	// The full user name for display reasons
	FullName string `db:"fullName" json:"fullName"`
	Email    string `db:"email" json:"email"`
	Phone    string `db:"phone" json:"phone"`
	// The role the user's permissions are derived from
	RoleID uint `db:"roleId" json:"roleId"`
	// Inactive users cannot log in
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `db:"updatedAt" json:"updatedAt"`
}

// SetPassword sets a new password creating a password hash from the incoming password and storing it in the user's
// PasswordHash property
func (u *User) SetPassword(pass string) error {
	hash, err := scrypt.GenerateFromPassword([]byte(pass), scrypt.DefaultParams)
	if err != nil {
		return fmt.Errorf("SetPassword: Error during password hashing: %v", err)
	}
	// The library already uses a string encoding here - so there is no need to encode further
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword checks if the given password corresponds to the hash stored in the user struct.
// It returns an error if the password does not match or an error occurs when loading the password hash from the user
func (u *User) CheckPassword(pass string) error {
	return scrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pass))
}

// Profile is the part of a user's data the user may see and change
type Profile struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}
