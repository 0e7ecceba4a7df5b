package internal

import (
	"net/http"
	"testing"

	"github.com/derWhity/medstock/internal/models"
	rolerepo "github.com/derWhity/medstock/internal/repos/role/sqlite"
	userrepo "github.com/derWhity/medstock/internal/repos/user/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directoryFixture struct {
	svc   DirectoryService
	users *userrepo.UserRepo
	roles *rolerepo.RoleRepo
	// Session of the "admin" user
	admin *models.Session
}

func newDirectoryFixture(t *testing.T, available bool) *directoryFixture {
	users, roles := identityStore(t)
	u, err := users.GetByName("admin")
	require.NoError(t, err)
	sess := adminSession()
	sess.Identity.UserID = u.ID
	return &directoryFixture{
		svc:   NewDirectoryService(users, roles, testPolicy, available, testLogger()),
		users: users,
		roles: roles,
		admin: sess,
	}
}

func TestDirectoryCreateUser(t *testing.T) {
	f := newDirectoryFixture(t, true)
	ctx := testCtx(f.admin)

	info, err := f.svc.CreateUser(ctx, NewUser{Name: " Carlos ", Password: "carlos123", FullName: "Carlos Ruiz"})
	require.NoError(t, err)
	assert.Equal(t, "carlos", info.Name)
	assert.Equal(t, models.RoleUser, info.Role)
	assert.True(t, info.Active)

	u, err := f.users.GetByCredentials("carlos", "carlos123")
	require.NoError(t, err)
	require.NotNil(t, u)

	_, err = f.svc.CreateUser(ctx, NewUser{Name: "CARLOS", Password: "carlos123", FullName: "Otro"})
	requireHTTPError(t, err, http.StatusConflict, ErrCodeAlreadyExists)

	_, err = f.svc.CreateUser(ctx, NewUser{Name: "luisa", Password: "luisa1234", FullName: "Luisa", Role: "auditor"})
	requireHTTPError(t, err, http.StatusNotFound, ErrCodeRoleNotFound)

	_, err = f.svc.CreateUser(ctx, NewUser{Name: "luisa", Password: "corta"})
	httpErr := requireHTTPError(t, err, http.StatusBadRequest, ErrCodeValidation)
	assert.Contains(t, httpErr.Data(), "password")
	assert.Contains(t, httpErr.Data(), "fullName")

	list, total, err := f.svc.ListUsers(ctx, Search{})
	require.NoError(t, err)
	assert.Equal(t, uint(3), total)
	require.Len(t, list, 3)
	assert.Equal(t, "admin", list[0].Name)
	assert.Equal(t, models.RoleAdmin, list[0].Role)

	num, err := f.svc.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(3), num)
}

func TestDirectoryDeleteUser(t *testing.T) {
	f := newDirectoryFixture(t, true)
	ctx := testCtx(f.admin)

	err := f.svc.DeleteUser(ctx, f.admin.Identity.UserID)
	requireHTTPError(t, err, http.StatusBadRequest, ErrCodeNotPermitted)

	ana, err := f.users.GetByName("ana")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteUser(ctx, ana.ID))
	err = f.svc.DeleteUser(ctx, ana.ID)
	requireHTTPError(t, err, http.StatusNotFound, ErrCodeUserNotFound)
}

func TestDirectoryPermissions(t *testing.T) {
	f := newDirectoryFixture(t, true)
	ctx := testCtx(f.admin)

	p, err := f.svc.CreatePermission(ctx, NewPermission{Name: "ver_reportes", Description: "Ver reportes"})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	_, err = f.svc.CreatePermission(ctx, NewPermission{Name: "ver_reportes"})
	requireHTTPError(t, err, http.StatusConflict, ErrCodeAlreadyExists)

	perms, err := f.svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, 5)

	role, err := f.roles.GetByName(models.RoleUser)
	require.NoError(t, err)
	assigned, err := f.svc.AssignPermissions(ctx, role.ID, []uint{p.ID})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "ver_reportes", assigned[0].Name)

	_, err = f.svc.AssignPermissions(ctx, role.ID, []uint{p.ID, 4711})
	requireHTTPError(t, err, http.StatusNotFound, ErrCodeRoleNotFound)
	// The failed assignment changed nothing
	assigned, err = f.svc.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	_, err = f.svc.RolePermissions(ctx, 4711)
	requireHTTPError(t, err, http.StatusNotFound, ErrCodeRoleNotFound)

	roles, err := f.svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestDirectoryGuard(t *testing.T) {
	f := newDirectoryFixture(t, true)

	_, err := f.svc.ListRoles(testCtx(nil))
	requireHTTPError(t, err, http.StatusForbidden, ErrCodeNotLoggedIn)
	_, _, err = f.svc.ListUsers(testCtx(userSession(models.PermViewInventory)), Search{})
	requireHTTPError(t, err, http.StatusForbidden, ErrCodeNotPermitted)

	remote := newDirectoryFixture(t, false)
	_, err = remote.svc.ListRoles(testCtx(remote.admin))
	requireHTTPError(t, err, http.StatusNotImplemented, ErrCodeNotAvailable)
	// Access is checked before availability
	_, err = remote.svc.ListRoles(testCtx(userSession()))
	requireHTTPError(t, err, http.StatusForbidden, ErrCodeNotPermitted)
}
