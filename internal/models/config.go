package models

import (
	"path"
	"time"

	"github.com/kardianos/osext"
)

// AppConfig is the application's main configuration structure
type AppConfig struct {
	// The directory where MedStock stores all of its data - defaults to the /data subdirectory of the folder, the
	// MedStock executable resides in
	DataDir string `json:"dataDir"`
	// The directory the browser UI is served from
	UIDir string `json:"uiDir"`
	// The credentials for the administrator account that is created on startup if it does not exist
	DefaultUser *DefaultUserConfig `json:"defaultUser"`
	// The IP address to listen at - including the port number
	ListenAddress string `json:"listenAddress"`
	// Session handling
	Session SessionConfig `json:"session"`
	// The remote REST API. When no URL is set, the local store is used for authentication and records
	Backend BackendConfig `json:"backend"`
}

// The DefaultUserConfig struct configures the administrator that is seeded into the local identity store
type DefaultUserConfig struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// SessionConfig configures the lifetime of user sessions
type SessionConfig struct {
	// Minutes of inactivity after which a session expires
	LifetimeMinutes uint `json:"lifetimeMinutes"`
}

// Lifetime returns the session lifetime as duration
func (c SessionConfig) Lifetime() time.Duration {
	if c.LifetimeMinutes == 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.LifetimeMinutes) * time.Minute
}

// BackendConfig configures the connection to the remote REST API
type BackendConfig struct {
	// Base URL of the API, e.g. "https://inventario.example.org/api"
	URL string `json:"url"`
	// Timeout for regular requests as duration string ("15s")
	Timeout string `json:"timeout"`
	// Timeout for export downloads
	ExportTimeout string `json:"exportTimeout"`
}

// Enabled checks if a remote API has been configured
func (c BackendConfig) Enabled() bool {
	return c.URL != ""
}

// RequestTimeout returns the parsed request timeout or the default of 15 seconds
func (c BackendConfig) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, 15*time.Second)
}

// DownloadTimeout returns the parsed export timeout or the default of 60 seconds
func (c BackendConfig) DownloadTimeout() time.Duration {
	return parseDuration(c.ExportTimeout, 60*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

// GetDefaultConfig returns the default configuration values for the application
func GetDefaultConfig() (*AppConfig, error) {
	execDir, err := osext.ExecutableFolder()
	if err != nil {
		return nil, err
	}
	return &AppConfig{
		DataDir: path.Join(execDir, "data"),
		UIDir:   path.Join(execDir, "ui"),
		DefaultUser: &DefaultUserConfig{
			Name:     "admin",
			Password: "changeme",
		},
		Session: SessionConfig{
			LifetimeMinutes: 60,
		},
		Backend: BackendConfig{
			Timeout:       "15s",
			ExportTimeout: "60s",
		},
		ListenAddress: ":3000",
	}, nil
}
