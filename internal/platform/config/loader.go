package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
)

// Environment variables that override file values.
const (
	EnvProjectID     = "LANDINGBEACON_PROJECT_ID"
	EnvAPIKey        = "LANDINGBEACON_API_KEY"
	EnvAPIURL        = "LANDINGBEACON_API_URL"
	EnvStorageDriver = "LANDINGBEACON_STORAGE_DRIVER"
	EnvLogLevel      = "LANDINGBEACON_LOG_LEVEL"
)

// DefaultPaths are searched in order when no explicit path is given.
var DefaultPaths = []string{"landingbeacon.yaml", ".landingbeacon.yaml"}

// Loader reads a YAML file over DefaultConfig and applies env overrides.
type Loader struct {
	useDotEnv   bool
	dotEnvFiles []string
	lookupEnv   func(string) (string, bool)
}

// NewLoader creates a loader that reads .env and the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from .env files before reading config.
// No files means ".env".
func (l *Loader) WithDotEnv(enabled bool, files ...string) *Loader {
	l.useDotEnv = enabled
	l.dotEnvFiles = files
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path. Path is
// empty when only defaults and the environment were used.
type Result struct {
	Config *Config
	Path   string
}

// Load reads path, or the first existing DefaultPaths entry when path is
// empty. An explicit path that does not exist is an error.
func (l *Loader) Load(path string) (*Result, error) {
	if l.useDotEnv {
		// A missing .env is normal; variables then come from the environment.
		_ = godotenv.Load(l.dotEnvFiles...)
	}

	cfg := DefaultConfig()
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", fmt.Sprintf("parse %s", resolved), err)
		}
	}

	l.applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Result{Config: cfg, Path: resolved}, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrap(errors.KindConfig, "config.load", "config file not found", err)
		}
		return path, nil
	}
	for _, candidate := range DefaultPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (l *Loader) applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvProjectID, &cfg.Project.ID)
	set(EnvAPIKey, &cfg.Project.APIKey)
	set(EnvAPIURL, &cfg.Project.APIURL)
	set(EnvStorageDriver, &cfg.Storage.Driver)
	set(EnvLogLevel, &cfg.Log.Level)
}

// Validate checks values that cannot be corrected silently. Project
// credentials are checked by the tracking client itself.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", kvstore.DriverNone, kvstore.DriverMemory, kvstore.DriverFile, kvstore.DriverRedis, kvstore.DriverSQLite:
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Identity.TTL < 0 {
		return errors.New(errors.KindConfig, "config.validate", "identity.ttl must not be negative")
	}
	if c.Tracking.Timeout < 0 || (c.Tracking.Timeout > 0 && c.Tracking.Timeout < 100*time.Millisecond) {
		return errors.New(errors.KindConfig, "config.validate", "tracking.timeout must be at least 100ms")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	return nil
}
