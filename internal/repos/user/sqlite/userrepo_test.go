package sqlite

import (
	"testing"

	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/derWhity/medstock/internal/repos/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, name, password string) *models.User {
	u := &models.User{Name: name, FullName: "Full " + name, Email: name + "@example.org", RoleID: 2, Active: true}
	require.NoError(t, u.SetPassword(password))
	return u
}

func TestCreateAndLoad(t *testing.T) {
	repo := New(sqlitetest.NewDB(t), sqlitetest.Logger())

	u := newUser(t, "  Ana ", "secret123")
	require.NoError(t, repo.Create(u))
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ana", u.Name)

	loaded, err := repo.GetByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Full   Ana ", loaded.FullName)
	assert.Equal(t, uint(2), loaded.RoleID)
	assert.True(t, loaded.Active)

	loaded, err = repo.GetByName("ANA")
	require.NoError(t, err)
	assert.Equal(t, u.ID, loaded.ID)

	_, err = repo.GetByID(4711)
	assert.Equal(t, repos.ErrEntityNotExisting, err)

	assert.Equal(t, repos.ErrDuplicate, repo.Create(newUser(t, "ana", "other")))
}

func TestGetByCredentials(t *testing.T) {
	repo := New(sqlitetest.NewDB(t), sqlitetest.Logger())
	u := newUser(t, "ana", "secret123")
	require.NoError(t, repo.Create(u))

	found, err := repo.GetByCredentials("ana", "secret123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.ID, found.ID)

	found, err = repo.GetByCredentials("ana", "wrong")
	assert.NoError(t, err)
	assert.Nil(t, found)

	found, err = repo.GetByCredentials("nobody", "secret123")
	assert.NoError(t, err)
	assert.Nil(t, found)

	// Inactive users cannot log in
	u.Active = false
	require.NoError(t, repo.Update(u))
	found, err = repo.GetByCredentials("ana", "secret123")
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestUpdateDeleteFindCount(t *testing.T) {
	repo := New(sqlitetest.NewDB(t), sqlitetest.Logger())
	for _, name := range []string{"ana", "bruno", "carla"} {
		require.NoError(t, repo.Create(newUser(t, name, "secret123")))
	}

	num, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, uint(3), num)

	users, total, err := repo.Find("n", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(2), total)
	require.Len(t, users, 1)
	assert.Equal(t, "ana", users[0].Name)

	users, _, err = repo.Find("", 0, 0)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	b := users[1]
	b.Phone = "555-1234"
	require.NoError(t, repo.Update(&b))
	loaded, err := repo.GetByID(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "555-1234", loaded.Phone)

	require.NoError(t, repo.Delete(b.ID))
	assert.Equal(t, repos.ErrEntityNotExisting, repo.Delete(b.ID))
	b.ID = 999
	assert.Equal(t, repos.ErrEntityNotExisting, repo.Update(&b))
}
