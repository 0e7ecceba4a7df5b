package internal

import (
	"testing"

	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/routing"
	"github.com/stretchr/testify/assert"
)

func TestNavigationResolve(t *testing.T) {
	s := NewNavigationService(routing.NewDefaultTable(), testLogger())

	res := s.Resolve(testCtx(userSession(models.PermViewMaintenance)), "/dashboard/mantenimiento/detalles/7/")
	assert.False(t, res.IsRedirect())
	assert.Equal(t, routing.PageRecordDetail, res.Page)
	assert.Equal(t, models.KindMaintenance, res.Kind)
	assert.Equal(t, map[string]string{"id": "7"}, res.Vars)

	res = s.Resolve(testCtx(userSession()), routing.PathMaintenance)
	assert.Equal(t, routing.PathNotFound, res.RedirectTo)

	res = s.Resolve(testCtx(nil), routing.PathProfile)
	assert.Equal(t, routing.PathLogin, res.RedirectTo)
}

func TestNavigationMenu(t *testing.T) {
	s := NewNavigationService(routing.NewDefaultTable(), testLogger())

	paths := func(items []routing.MenuItem) []string {
		ret := []string{}
		for _, i := range items {
			ret = append(ret, i.Path)
		}
		return ret
	}
	user := paths(s.Menu(testCtx(userSession(models.PermViewMaintenance))))
	assert.Contains(t, user, routing.PathMaintenance)
	assert.NotContains(t, user, routing.PathCreateMaintenance)
	assert.NotContains(t, user, routing.PathAdminUsers)

	admin := paths(s.Menu(testCtx(adminSession())))
	assert.Contains(t, admin, routing.PathAdminUsers)
	assert.Contains(t, admin, routing.PathAdminFormBuilder)

	assert.Len(t, s.Routes(testCtx(nil)), len(routing.DefaultRoutes()))
}
