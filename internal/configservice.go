package internal

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/derWhity/medstock/internal/models"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// Environment variables overriding the configuration file
const (
	EnvListen        = "MEDSTOCK_LISTEN"
	EnvDataDir       = "MEDSTOCK_DATA_DIR"
	EnvUIDir         = "MEDSTOCK_UI_DIR"
	EnvAPIURL        = "MEDSTOCK_API_URL"
	EnvAdminUser     = "MEDSTOCK_ADMIN_USER"
	EnvAdminPassword = "MEDSTOCK_ADMIN_PASSWORD"
)

// ConfigService gives access to the application's configuration
type ConfigService interface {
	// Load loads the application config from its default file location
	Load(ctx context.Context) error
	// LoadFromFile loads the configuration from the given JSON file
	LoadFromFile(ctx context.Context, filename string) error
	// ApplyEnvironment overrides the loaded configuration with the MEDSTOCK_* environment variables. Variables are
	// also read from the given .env files, if they exist; variables already set in the environment win
	ApplyEnvironment(ctx context.Context, envFiles ...string) error
	// Write writes the current application configuration to the default file name
	Write(ctx context.Context) error
	// WriteToFile writes the current application configuration to a JSON file
	WriteToFile(ctx context.Context, filename string) error
	// GetConfig retuns the current application configuration
	GetConfig(ctx context.Context) models.AppConfig
}

// -- ConfigService implementation -------------------------------------------------------------------------------------

type configService struct {
	sync.RWMutex
	configFilename string
	config         *models.AppConfig
}

// NewConfigService creates a new configuration service instance with the given default file name
func NewConfigService(configFilename string) ConfigService {
	return &configService{configFilename: configFilename}
}

// Load loads the application config from its default file location
func (s *configService) Load(ctx context.Context) error {
	return s.LoadFromFile(ctx, s.configFilename)
}

// LoadFromFile loads the configuration from the given JSON file. Keys missing in the file keep their defaults
func (s *configService) LoadFromFile(ctx context.Context, filename string) error {
	logger := ctxhelper.Logger(ctx)
	logger.WithField(log.FldFile, filename).Info("Loading configuration file")
	conf, err := models.GetDefaultConfig()
	if err != nil {
		return errors.Wrap(err, "LoadFromFile: Failed to create default config")
	}
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "LoadFromFile: cannot load configuration file")
	}
	defer f.Close()
	if err = json.NewDecoder(f).Decode(&conf); err != nil {
		return errors.Wrap(err, "LoadFromFile: Failed to decode configuration file")
	}
	s.Lock()
	defer s.Unlock()
	s.config = conf
	return nil
}

// ApplyEnvironment overrides the loaded configuration with the MEDSTOCK_* environment variables
func (s *configService) ApplyEnvironment(ctx context.Context, envFiles ...string) error {
	logger := ctxhelper.Logger(ctx)
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		logger.WithField(log.FldFile, file).Info("Loading environment file")
		if err := godotenv.Load(file); err != nil {
			return errors.Wrapf(err, "ApplyEnvironment: Failed to load '%s'", file)
		}
	}
	conf := s.GetConfig(ctx)
	if conf.DefaultUser == nil {
		conf.DefaultUser = &models.DefaultUserConfig{}
	} else {
		du := *conf.DefaultUser
		conf.DefaultUser = &du
	}
	overrides := map[string]*string{
		EnvListen:        &conf.ListenAddress,
		EnvDataDir:       &conf.DataDir,
		EnvUIDir:         &conf.UIDir,
		EnvAPIURL:        &conf.Backend.URL,
		EnvAdminUser:     &conf.DefaultUser.Name,
		EnvAdminPassword: &conf.DefaultUser.Password,
	}
	for name, target := range overrides {
		if val, ok := os.LookupEnv(name); ok {
			logger.WithField(log.FldVariable, name).Debug("Configuration overridden by environment")
			*target = val
		}
	}
	s.Lock()
	defer s.Unlock()
	s.config = &conf
	return nil
}

// Write writes the current application configuration to the default file name
func (s *configService) Write(ctx context.Context) error {
	return s.WriteToFile(ctx, s.configFilename)
}

// WriteToFile writes the current application configuration to a JSON file
func (s *configService) WriteToFile(ctx context.Context, filename string) error {
	logger := ctxhelper.Logger(ctx)
	logger.WithField(log.FldFile, filename).Info("Writing configuration file")
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "WriteToFile: Cannot open configuration file '%s' to write to", filename)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	conf := s.GetConfig(ctx)
	if err := enc.Encode(&conf); err != nil {
		return errors.Wrap(err, "WriteToFile: Failed to serialize configuration data")
	}
	return nil
}

// GetConfig retuns the current application configuration
func (s *configService) GetConfig(ctx context.Context) models.AppConfig {
	s.RLock()
	defer s.RUnlock()
	var ret models.AppConfig
	if s.config != nil {
		ret = *s.config
	} else {
		if tmp, err := models.GetDefaultConfig(); err == nil {
			ret = *tmp
		}
	}
	return ret
}
