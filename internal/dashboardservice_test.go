package internal

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/derWhity/medstock/internal/models"
	recordrepo "github.com/derWhity/medstock/internal/repos/record/sqlite"
	"github.com/derWhity/medstock/internal/repos/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

func fixedUsers(num uint) UserCounter {
	return func(context.Context) (uint, error) { return num, nil }
}

// dashboardRepo creates a record store holding two inventory records, one of them older than the chart period, one
// maintenance record and two medications
func dashboardRepo(t *testing.T) *recordrepo.RecordRepo {
	repo := recordrepo.New(sqlitetest.NewDB(t), testLogger())
	now := time.Now()
	for _, r := range []struct {
		kind string
		at   time.Time
	}{
		{models.KindInventory, now},
		{models.KindInventory, now.AddDate(0, 0, -60)},
		{models.KindMaintenance, now.AddDate(0, 0, -3)},
		{models.KindMedications, now},
		{models.KindMedications, now},
	} {
		rec := &models.Record{Kind: r.kind, Fields: map[string]string{"nombre": "x"}, CreatedBy: 1, CreatedAt: r.at}
		require.NoError(t, repo.Create(context.Background(), rec))
	}
	return repo
}

func TestUserDashboard(t *testing.T) {
	s := NewDashboardService(dashboardRepo(t), fixedUsers(3), testPolicy, testLogger())

	d, err := s.UserDashboard(testCtx(userSession()))
	require.NoError(t, err)
	assert.Len(t, d.Totals, 4)
	assert.Equal(t, uint(2), d.Totals[models.KindMedications])
	assert.Equal(t, uint(0), d.Totals[models.KindReagents])
	assert.NotContains(t, d.Totals, models.KindInventory)

	d, err = s.UserDashboard(testCtx(userSession(models.PermViewInventory)))
	require.NoError(t, err)
	assert.Equal(t, uint(2), d.Totals[models.KindInventory])
	assert.NotContains(t, d.Totals, models.KindMaintenance)

	_, err = s.UserDashboard(testCtx(nil))
	requireHTTPError(t, err, http.StatusForbidden, ErrCodeNotLoggedIn)
}

func TestAdminDashboard(t *testing.T) {
	s := NewDashboardService(dashboardRepo(t), fixedUsers(3), testPolicy, testLogger())

	d, err := s.AdminDashboard(testCtx(adminSession()))
	require.NoError(t, err)
	assert.Equal(t, map[string]uint{
		models.KindInventory:   2,
		models.KindMaintenance: 1,
		totalUsers:             3,
	}, d.Totals)
	assert.Equal(t, time.Now().AddDate(0, 0, -chartDays+1).Format(models.DateLayout), d.Since)

	require.Len(t, d.Daily[models.KindInventory], 1)
	assert.Equal(t, uint(1), d.Daily[models.KindInventory][0].Count)
	require.Len(t, d.Daily[models.KindMaintenance], 1)
	assert.NotContains(t, d.Daily, models.KindMedications)

	// All permissions do not make an administrator
	perms := []string{}
	for _, p := range models.DefaultPermissions() {
		perms = append(perms, p.Name)
	}
	_, err = s.AdminDashboard(testCtx(userSession(perms...)))
	requireHTTPError(t, err, http.StatusForbidden, ErrCodeNotPermitted)
}

func TestAdminDashboardFailingCounter(t *testing.T) {
	failing := func(context.Context) (uint, error) { return 0, fmt.Errorf("connection refused") }
	s := NewDashboardService(dashboardRepo(t), failing, testPolicy, testLogger())

	d, err := s.AdminDashboard(testCtx(adminSession()))
	assert.Nil(t, d)
	requireHTTPError(t, err, http.StatusInternalServerError, ErrCodeRepoError)
}
