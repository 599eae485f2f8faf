package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the YAML file.
const (
	EnvBaseURL  = "ROOMCAL_BASE_URL"
	EnvSession  = "ROOMCAL_SESSION"
	EnvLogLevel = "ROOMCAL_LOG_LEVEL"
	EnvListen   = "ROOMCAL_LISTEN"
)

// EndpointsConfig holds resource paths relative to BaseURL.
type EndpointsConfig struct {
	Terms  string `yaml:"terms" json:"terms"`
	Events string `yaml:"events" json:"events"`
	// Delete is a pattern with a single %d for the event id.
	Delete string `yaml:"delete" json:"delete"`
}

// CSRFConfig names the cookie the token is read from and the header it is
// echoed in.
type CSRFConfig struct {
	Cookie string `yaml:"cookie" json:"cookie"`
	Header string `yaml:"header" json:"header"`
}

// RoomConfig is one entry of the room filter.
type RoomConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// LogConfig controls internal/log.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	// Dir enables a rotating roomcal.log in this directory.
	Dir string `yaml:"dir" json:"dir"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the calendar API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the calendar API.
	Listen string `yaml:"listen" json:"listen"`

	// BaseURL is the root of the reservation backend, e.g.
	// "https://zapisy.example/".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timezone is the IANA zone used for display and for the backend's naive
	// timestamps (e.g. "Europe/Warsaw").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron re-runs the current calendar view on a schedule
	// (e.g. "*/5 * * * *"). Empty disables periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`

	Endpoints     EndpointsConfig `yaml:"endpoints" json:"endpoints"`
	CSRF          CSRFConfig      `yaml:"csrf" json:"csrf"`
	SessionCookie string          `yaml:"session_cookie" json:"session_cookie"`

	// Rooms lists the rooms offered by the room filter.
	Rooms []RoomConfig `yaml:"rooms" json:"rooms"`

	Log LogConfig `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Session is the backend session cookie value. It only ever comes from
	// the environment or the keyring and is never written to disk.
	Session string `yaml:"-" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Europe/Warsaw",
		WeekStart:   "monday",
		RefreshCron: "*/5 * * * *",
	}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults. RefreshCron is left alone;
// empty disables refresh.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Warsaw"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 15
	}
	if c.Endpoints.Terms == "" {
		c.Endpoints.Terms = "classrooms/terms/"
	}
	if c.Endpoints.Events == "" {
		c.Endpoints.Events = "events/"
	}
	if c.Endpoints.Delete == "" {
		c.Endpoints.Delete = "delete-event/%d/"
	}
	if c.CSRF.Cookie == "" {
		c.CSRF.Cookie = "csrftoken"
	}
	if c.CSRF.Header == "" {
		c.CSRF.Header = "X-CSRFToken"
	}
	if c.SessionCookie == "" {
		c.SessionCookie = "sessionid"
	}
	if c.Rooms == nil {
		c.Rooms = []RoomConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base_url is empty (set it in the config file or %s)", EnvBaseURL)
	}
	if strings.Count(c.Endpoints.Delete, "%d") != 1 {
		return fmt.Errorf("endpoints.delete must contain exactly one %%d, got %q", c.Endpoints.Delete)
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local for unknown zones.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ApplyEnv overlays ROOMCAL_* variables using lookup (normally
// os.LookupEnv). Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvBaseURL, &c.BaseURL)
	set(EnvSession, &c.Session)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvListen, &c.Listen)
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML config at path and applies ROOMCAL_* overrides. A
// missing file is created with the defaults first. Keys absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			err := Save(path, cfg)
			cfg.ApplyEnv(os.LookupEnv)
			return cfg, err
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv(os.LookupEnv)

	return cfg, nil
}

// Save writes cfg as YAML through a temp file and rename. The result is
// mode 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".roomcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
