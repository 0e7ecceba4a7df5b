package sqlite

import (
	"testing"

	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/derWhity/medstock/internal/repos/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(perms []models.Permission) []string {
	ret := []string{}
	for _, p := range perms {
		ret = append(ret, p.Name)
	}
	return ret
}

func TestSeededRoles(t *testing.T) {
	repo := New(sqlitetest.NewDB(t), sqlitetest.Logger())

	roles, err := repo.List()
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, models.RoleAdmin, roles[0].Name)
	assert.Equal(t, models.RoleUser, roles[1].Name)

	admin, err := repo.GetByName(models.RoleAdmin)
	require.NoError(t, err)
	perms, err := repo.PermissionsOf(admin.ID)
	require.NoError(t, err)
	assert.Len(t, perms, len(models.DefaultPermissions()))

	_, err = repo.GetByName("nobody")
	assert.Equal(t, repos.ErrEntityNotExisting, err)
}

func TestPermissionAssignment(t *testing.T) {
	repo := New(sqlitetest.NewDB(t), sqlitetest.Logger())

	user, err := repo.GetByName(models.RoleUser)
	require.NoError(t, err)
	perms, err := repo.PermissionsOf(user.ID)
	require.NoError(t, err)
	assert.Empty(t, perms)

	p := &models.Permission{Name: " exportar ", Description: "Exportar registros"}
	require.NoError(t, repo.CreatePermission(p))
	assert.Equal(t, "exportar", p.Name)
	assert.Equal(t, repos.ErrDuplicate, repo.CreatePermission(&models.Permission{Name: "exportar"}))

	all, err := repo.ListPermissions()
	require.NoError(t, err)
	require.Len(t, all, 5)

	var viewMaint uint
	for _, perm := range all {
		if perm.Name == models.PermViewMaintenance {
			viewMaint = perm.ID
		}
	}
	// Duplicates in the list are fine
	require.NoError(t, repo.AssignPermissions(user.ID, []uint{viewMaint, p.ID, viewMaint}))
	perms, err = repo.PermissionsOf(user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"exportar", models.PermViewMaintenance}, names(perms))

	// Assigning replaces the former set
	require.NoError(t, repo.AssignPermissions(user.ID, []uint{p.ID}))
	perms, err = repo.PermissionsOf(user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"exportar"}, names(perms))

	// Unknown permissions leave everything untouched
	assert.Equal(t, repos.ErrEntityNotExisting, repo.AssignPermissions(user.ID, []uint{9999}))
	perms, err = repo.PermissionsOf(user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"exportar"}, names(perms))

	assert.Equal(t, repos.ErrEntityNotExisting, repo.AssignPermissions(9999, nil))
}

func TestCreateRole(t *testing.T) {
	repo := New(sqlitetest.NewDB(t), sqlitetest.Logger())
	r := &models.Role{Name: "auditor"}
	require.NoError(t, repo.Create(r))
	loaded, err := repo.GetByID(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "auditor", loaded.Name)
	assert.Equal(t, repos.ErrDuplicate, repo.Create(&models.Role{Name: models.RoleAdmin}))
}
