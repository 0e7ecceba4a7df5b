package internal

import (
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/routing"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// NavigationService tells the UI which page to show for a path and which pages may be opened at all
type NavigationService interface {
	// Resolve resolves the path for the session of the current call
	Resolve(ctx context.Context, path string) routing.Resolution
	// Menu returns the menu entries the session of the current call may open
	Menu(ctx context.Context) []routing.MenuItem
	// Routes returns the full route table
	Routes(ctx context.Context) []routing.Route
}

type navigationService struct {
	table  *routing.Table
	logger *logrus.Entry
}

// NewNavigationService creates a new navigation service working on the given route table
func NewNavigationService(table *routing.Table, logger *logrus.Entry) NavigationService {
	return &navigationService{table, logger}
}

// Resolve resolves the path for the session of the current call
func (s *navigationService) Resolve(ctx context.Context, path string) routing.Resolution {
	res := s.table.Resolve(path, ctxhelper.Session(ctx))
	if res.IsRedirect() {
		s.logger.WithFields(logrus.Fields{
			log.FldPath:     res.Path,
			log.FldRedirect: res.RedirectTo,
		}).Debug("Redirecting navigation")
	}
	return res
}

// Menu returns the menu entries the session of the current call may open
func (s *navigationService) Menu(ctx context.Context) []routing.MenuItem {
	return s.table.Menu(ctxhelper.Session(ctx))
}

// Routes returns the full route table
func (s *navigationService) Routes(ctx context.Context) []routing.Route {
	return s.table.Routes()
}
