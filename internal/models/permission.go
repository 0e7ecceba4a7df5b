package models

import (
	"encoding/json"
	"sort"
	"strings"
)

const (
	// RoleAdmin is the name of the administrator role
	RoleAdmin = "administrador"
	// RoleUser is the name of the default role for regular users
	RoleUser = "usuario"

	// PermViewInventory allows listing inventory records
	PermViewInventory = "ver_inventario"
	// PermCreateInventory allows creating and changing inventory records
	PermCreateInventory = "crear_inventario"
	// PermViewMaintenance allows listing maintenance records and their details
	PermViewMaintenance = "ver_mantenimiento"
	// PermCreateMaintenance allows creating and changing maintenance records
	PermCreateMaintenance = "crear_mantenimiento"
)

// DefaultPermissions returns the permission tokens known out of the box along with a description
func DefaultPermissions() []Permission {
	return []Permission{
		{Name: PermViewInventory, Description: "Ver registros de inventario"},
		{Name: PermCreateInventory, Description: "Registrar y actualizar inventario"},
		{Name: PermViewMaintenance, Description: "Ver registros de mantenimiento"},
		{Name: PermCreateMaintenance, Description: "Registrar y actualizar mantenimientos"},
	}
}

// Permission is a named capability that can be granted to roles
type Permission struct {
	ID uint `db:"id" json:"id"`
	// The permission token checked at runtime
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

// Role groups a set of permissions
type Role struct {
	ID          uint   `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

// PermissionSet is a set of permission tokens. The zero value is an empty set
type PermissionSet []string

// NewPermissionSet builds a set from the given tokens, dropping blanks and duplicates
func NewPermissionSet(tokens ...string) PermissionSet {
	seen := make(map[string]bool, len(tokens))
	set := PermissionSet{}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		set = append(set, t)
	}
	sort.Strings(set)
	return set
}

// Has checks if the token is part of the set
func (p PermissionSet) Has(token string) bool {
	// Sets not built by NewPermissionSet may be unsorted
	for _, t := range p {
		if t == token {
			return true
		}
	}
	return false
}

// UnmarshalJSON normalizes the incoming token list
func (p *PermissionSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	*p = NewPermissionSet(tokens...)
	return nil
}

// MarshalJSON always writes an array, never null
func (p PermissionSet) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(p))
}
