package inmem

import (
	"fmt"
	"sync"
	"testing"

	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLifecycle(t *testing.T) {
	repo := New()
	u := &models.User{Name: " Ana ", FullName: "Ana Pérez", Active: true}
	require.NoError(t, u.SetPassword("secret123"))
	require.NoError(t, repo.Create(u))
	assert.Equal(t, uint(1), u.ID)
	assert.Equal(t, "ana", u.Name)

	assert.Equal(t, repos.ErrDuplicate, repo.Create(&models.User{Name: "ANA"}))

	found, err := repo.GetByCredentials("ana", "secret123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.ID, found.ID)

	found, err = repo.GetByCredentials("ana", "wrong")
	assert.NoError(t, err)
	assert.Nil(t, found)

	u.Active = false
	u.Name = "renamed"
	require.NoError(t, repo.Update(u))
	assert.Equal(t, "ana", u.Name)
	found, _ = repo.GetByCredentials("ana", "secret123")
	assert.Nil(t, found, "inactive users cannot log in")

	require.NoError(t, repo.Delete(u.ID))
	assert.Equal(t, repos.ErrEntityNotExisting, repo.Delete(u.ID))
	_, err = repo.GetByID(u.ID)
	assert.Equal(t, repos.ErrEntityNotExisting, err)
	assert.Equal(t, repos.ErrEntityNotExisting, repo.Update(u))
}

func TestFindAndCount(t *testing.T) {
	repo := New()
	for _, name := range []string{"carla", "ana", "bruno"} {
		require.NoError(t, repo.Create(&models.User{Name: name, FullName: "User " + name}))
	}
	list, total, err := repo.Find("", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(3), total)
	require.Len(t, list, 1)
	assert.Equal(t, "bruno", list[0].Name)

	list, total, err = repo.Find("AR", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), total)
	assert.Equal(t, "carla", list[0].Name)

	list, _, err = repo.Find("", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)

	num, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, uint(3), num)
}

func TestConcurrentCreate(t *testing.T) {
	repo := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.Create(&models.User{Name: fmt.Sprintf("user%d", i)}))
		}(i)
	}
	wg.Wait()
	num, _ := repo.Count()
	assert.Equal(t, uint(20), num)
}
