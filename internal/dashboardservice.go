package internal

import (
	"sync"
	"time"

	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"
)

const (
	// Number of days the admin dashboard charts cover
	chartDays = 30
	// Key of the user total on the admin dashboard
	totalUsers = "usuarios"
)

// UserDashboard holds the figures shown on the dashboard of regular users
type UserDashboard struct {
	// Number of records per kind the user may view
	Totals map[string]uint `json:"totals"`
}

// AdminDashboard holds the figures shown on the administrator dashboard
type AdminDashboard struct {
	// Totals of inventory, maintenance records and users
	Totals map[string]uint `json:"totals"`
	// Records created per day during the chart period, per kind
	Daily map[string][]models.DayCount `json:"daily"`
	// First day of the chart period
	Since string `json:"since"`
}

// DashboardService collects the figures shown on the dashboards
type DashboardService interface {
	// UserDashboard returns the record totals for the session of the current call
	UserDashboard(ctx context.Context) (*UserDashboard, error)
	// AdminDashboard returns the totals and charts of the administrator dashboard
	AdminDashboard(ctx context.Context) (*AdminDashboard, error)
}

// UserCounter counts the users known to the system
type UserCounter func(ctx context.Context) (uint, error)

type dashboardService struct {
	records    repos.RecordRepo
	countUsers UserCounter
	policy     access.Policy
	logger     *logrus.Entry
}

// NewDashboardService creates a new dashboard service instance
func NewDashboardService(
	records repos.RecordRepo,
	countUsers UserCounter,
	policy access.Policy,
	logger *logrus.Entry,
) DashboardService {
	return &dashboardService{records, countUsers, policy, logger}
}

// guard checks the requirement for the session of the current call
func (s *dashboardService) guard(ctx context.Context, req access.Requirement) (*models.Session, error) {
	sess := ctxhelper.Session(ctx)
	d := s.policy.Evaluate(sess, req)
	if d.Allowed {
		return sess, nil
	}
	if d.Reason == access.ReasonNotLoggedIn {
		return nil, ErrNotLoggedIn
	}
	return nil, ErrNotPermitted
}

// UserDashboard returns the record totals for the session of the current call. All totals are requested at once
func (s *dashboardService) UserDashboard(ctx context.Context) (*UserDashboard, error) {
	sess, err := s.guard(ctx, access.LoggedIn())
	if err != nil {
		return nil, err
	}
	ret := &UserDashboard{Totals: map[string]uint{}}
	var mtx sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, k := range models.RecordKinds() {
		if !s.policy.Evaluate(sess, access.Permission(k.ViewPermission)).Allowed {
			continue
		}
		kind := k.Name
		g.Go(func() error {
			num, err := s.records.Count(gctx, kind)
			if err != nil {
				return err
			}
			mtx.Lock()
			defer mtx.Unlock()
			ret.Totals[kind] = num
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError(s.logger, err, "Failed to count records")
	}
	return ret, nil
}

// AdminDashboard returns the totals and charts of the administrator dashboard. All figures are requested at once,
// the first failure fails the whole dashboard
func (s *dashboardService) AdminDashboard(ctx context.Context) (*AdminDashboard, error) {
	if _, err := s.guard(ctx, access.Admin()); err != nil {
		return nil, err
	}
	since := time.Now().AddDate(0, 0, -chartDays+1)
	since = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())
	ret := &AdminDashboard{
		Totals: map[string]uint{},
		Daily:  map[string][]models.DayCount{},
		Since:  since.Format(models.DateLayout),
	}
	var mtx sync.Mutex
	setTotal := func(key string, num uint) {
		mtx.Lock()
		defer mtx.Unlock()
		ret.Totals[key] = num
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range []string{models.KindInventory, models.KindMaintenance} {
		kind := kind
		g.Go(func() error {
			num, err := s.records.Count(gctx, kind)
			if err == nil {
				setTotal(kind, num)
			}
			return err
		})
		g.Go(func() error {
			days, err := s.records.CountByDay(gctx, kind, since)
			if err != nil {
				return err
			}
			mtx.Lock()
			defer mtx.Unlock()
			ret.Daily[kind] = days
			return nil
		})
	}
	g.Go(func() error {
		num, err := s.countUsers(gctx)
		if err == nil {
			setTotal(totalUsers, num)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(s.logger, err, "Failed to collect dashboard figures")
	}
	return ret, nil
}
