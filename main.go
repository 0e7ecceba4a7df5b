package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/derWhity/medstock/internal"
	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/backend"
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/migrate"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	recordrepo "github.com/derWhity/medstock/internal/repos/record/sqlite"
	rolerepo "github.com/derWhity/medstock/internal/repos/role/sqlite"
	sessionrepo "github.com/derWhity/medstock/internal/repos/session/inmem"
	userrepo "github.com/derWhity/medstock/internal/repos/user/sqlite"
	"github.com/derWhity/medstock/internal/routing"
	"github.com/jmoiron/sqlx"
	"github.com/kardianos/osext"
	_ "github.com/mattn/go-sqlite3" // Just needed for the sqlite driver
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	appName    = "MedStock"
	appVersion = "0.1.0"
	dbFile     = "medstock.db"
)

// Collection of the inventory API that holds the users
const totalUsersKind = "usuarios"

// Checks and tries to create the given directory recursively
func checkAndCreateDir(path string, logger *logrus.Entry) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField(log.FldPath, path).Info("Directory does not exist - trying to create...")
			if err = os.MkdirAll(path, os.ModePerm); err != nil {
				return errors.Wrap(err, "Failed to create directory")
			}
			logger.Info("Directory created successfully")
			return nil
		}
		return errors.Wrap(err, "Stat has failed")
	}
	if !fileInfo.IsDir() {
		return fmt.Errorf("'%s' is not a directory. Remove the plain file if you want to continue", path)
	}
	return nil
}

// environment is what every command needs: configuration, logger and the local database
type environment struct {
	ctx    context.Context
	logger *logrus.Entry
	conf   models.AppConfig
	db     *sqlx.DB
}

// setup loads the configuration and opens the local database, performing pending migrations
func setup(configFile string) (*environment, error) {
	ctx := context.Background()

	// Initialize the logger
	logger := logrus.WithField(log.FldVersion, appVersion)
	ctx = ctxhelper.WithLogger(ctx, logger)

	// Load the main configuration file
	cs := internal.NewConfigService(configFile)
	if err := cs.Load(ctx); err != nil {
		logger.WithError(err).Warn("Cannot load config. Using defaults")
	}
	envFiles := []string{".env"}
	if execDir, err := osext.ExecutableFolder(); err == nil {
		envFiles = append([]string{filepath.Join(execDir, ".env")}, envFiles...)
	}
	if err := cs.ApplyEnvironment(ctx, envFiles...); err != nil {
		return nil, err
	}
	conf := cs.GetConfig(ctx)

	logger.Infof("Using '%s' as data directory", conf.DataDir)
	if err := checkAndCreateDir(conf.DataDir, logger); err != nil {
		return nil, err
	}

	// Set up the database connection and perform pending migrations
	db, err := sqlx.Open("sqlite3", path.Join(conf.DataDir, dbFile))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to open database connection")
	}
	logger.Info("Performing database migrations...")
	if err = migrate.ExecuteMigrationsOnDb(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Database migration has failed. Please check database for consistency and try again")
	}
	return &environment{ctx, logger, conf, db}, nil
}

// addUser creates an active user with the given role in the local identity store
func addUser(users repos.UserRepo, roles repos.RoleRepo, u *models.User, roleName, password string) error {
	role, err := roles.GetByName(roleName)
	if err != nil {
		return errors.Wrapf(err, "Cannot load role '%s'", roleName)
	}
	u.RoleID = role.ID
	u.Active = true
	if err := u.SetPassword(password); err != nil {
		return err
	}
	return users.Create(u)
}

// seedDefaultUser creates the configured administrator if the local identity store does not know it yet
func seedDefaultUser(users repos.UserRepo, roles repos.RoleRepo, conf *models.DefaultUserConfig, logger *logrus.Entry) error {
	if conf == nil || strings.TrimSpace(conf.Name) == "" {
		return nil
	}
	if _, err := users.GetByName(conf.Name); err == nil {
		return nil
	} else if err != repos.ErrEntityNotExisting {
		return err
	}
	u := models.User{Name: conf.Name, FullName: conf.Name}
	if err := addUser(users, roles, &u, models.RoleAdmin, conf.Password); err != nil {
		return err
	}
	logger.WithField(log.FldUser, u.Name).Info("Created default administrator")
	return nil
}

// serve runs the HTTP service until a stop signal arrives
func serve(configFile string) error {
	env, err := setup(configFile)
	if err != nil {
		return err
	}
	defer env.db.Close()
	logger, conf := env.logger, env.conf
	logger.Infof("%s version %s is starting up...", appName, appVersion)

	users := userrepo.New(env.db, logger)
	roles := rolerepo.New(env.db, logger)
	if err := seedDefaultUser(users, roles, conf.DefaultUser, logger); err != nil {
		return errors.Wrap(err, "Failed to create the default user")
	}

	policy := access.DefaultPolicy()
	table := routing.NewDefaultTable()

	var (
		records    repos.RecordRepo
		auth       internal.Authenticator
		accounts   repos.AccountStore
		countUsers internal.UserCounter
	)
	local := !conf.Backend.Enabled()
	if local {
		logger.Info("Using the local store for records and authentication")
		records = recordrepo.New(env.db, logger)
		auth = internal.NewLocalAuthenticator(users, roles)
		accounts = internal.NewLocalAccountStore(users, roles)
		countUsers = func(ctx context.Context) (uint, error) { return users.Count() }
	} else {
		client, err := backend.New(conf.Backend, logger.WithField(log.FldTransport, "API"))
		if err != nil {
			return err
		}
		logger.WithField(log.FldURL, conf.Backend.URL).Info("Using the inventory API for records and authentication")
		pingCtx, cancel := context.WithTimeout(env.ctx, conf.Backend.RequestTimeout())
		if err := client.Ping(pingCtx); err != nil {
			logger.WithError(err).Warn("The inventory API cannot be reached right now")
		}
		cancel()
		records = client
		auth = client
		accounts = client
		countUsers = func(ctx context.Context) (uint, error) { return client.Count(ctx, totalUsersKind) }
	}

	sessServ := internal.NewSessionService(sessionrepo.New(conf.Session.Lifetime()), auth, logger)
	svc := internal.Services{
		Session:    sessServ,
		Navigation: internal.NewNavigationService(table, logger),
		Record:     internal.NewRecordService(records, policy, logger),
		Dashboard:  internal.NewDashboardService(records, countUsers, policy, logger),
		Profile:    internal.NewProfileService(accounts, logger),
		Directory:  internal.NewDirectoryService(users, roles, policy, local, logger),
	}

	httpLogger := logger.WithField(log.FldTransport, "HTTP")
	h := internal.MakeHTTPHandler(svc, policy, conf.UIDir, httpLogger)

	// Start listening
	errs := make(chan error)

	// Listen for stop signals that will end the service
	go func() {
		c := make(chan os.Signal, 2)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		err := fmt.Errorf("%s", <-c)
		logger.Info("Caught signal to stop. Shutting down.")
		errs <- err
	}()

	go func() {
		httpLogger.WithField(log.FldAddress, conf.ListenAddress).Info("Starting listening port")
		errs <- http.ListenAndServe(conf.ListenAddress, h)
	}()

	// Watchdog for systemd
	go func() {
		interval, err := daemon.SdWatchdogEnabled(false)
		if err != nil || interval == 0 {
			return
		}
		logger.Info("Activating systemd watchdog goroutine")
		url := fmt.Sprintf("http://%s/alive", localAddress(conf.ListenAddress))
		for {
			if resp, err := http.Get(url); err == nil {
				resp.Body.Close()
				daemon.SdNotify(false, "WATCHDOG=1")
			}
			time.Sleep(interval / 3)
		}
	}()

	// Notify systemd that we are ready to go (if available)
	daemon.SdNotify(false, "READY=1")

	logger.WithError(<-errs).Info("Shutdown complete")
	return nil
}

// localAddress turns a listen address into one the watchdog can call
func localAddress(listen string) string {
	idx := strings.LastIndex(listen, ":")
	if idx < 0 {
		return listen
	}
	host := listen[:idx]
	if host == "" || host == "0.0.0.0" || host == "[::]" {
		host = "127.0.0.1"
	}
	return host + listen[idx:]
}

func main() {
	Execute()
}
