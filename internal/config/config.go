// Package config loads tourney's settings.
//
// Values are resolved in order: built-in defaults, the TOML config file,
// TOURNEY_* environment variables (TOURNEY_API_BASE_URL for api.base_url),
// then any command-line flags bound to the viper instance.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const (
	envPrefix = "TOURNEY"
	appDir    = "tourney"
)

// Config is the effective configuration.
type Config struct {
	API       API       `mapstructure:"api"`
	Store     Store     `mapstructure:"store"`
	Session   Session   `mapstructure:"session"`
	Sync      Sync      `mapstructure:"sync"`
	Notify    Notify    `mapstructure:"notify"`
	Dashboard Dashboard `mapstructure:"dashboard"`
	Log       Log       `mapstructure:"log"`

	// File is the config file that was read, empty when none existed.
	File string `mapstructure:"-"`
}

type API struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	// Offline forces every operation onto the local-only path.
	Offline bool `mapstructure:"offline"`
}

type Store struct {
	Path string `mapstructure:"path"`
}

type Session struct {
	Path string `mapstructure:"path"`
}

type Sync struct {
	Interval  time.Duration `mapstructure:"interval"`
	PageLimit int           `mapstructure:"page_limit"`
	MaxPages  int           `mapstructure:"max_pages"`
}

type Notify struct {
	Interval   time.Duration `mapstructure:"interval"`
	QuietStart int           `mapstructure:"quiet_start"`
	QuietEnd   int           `mapstructure:"quiet_end"`
	FireOnce   bool          `mapstructure:"fire_once"`
}

type Dashboard struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type Log struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var defaults = map[string]any{
	"api.base_url":       "http://localhost:3000/api/",
	"api.timeout":        "10s",
	"api.retries":        2,
	"api.offline":        false,
	"store.path":         "",
	"session.path":       "",
	"sync.interval":      "15m",
	"sync.page_limit":    10,
	"sync.max_pages":     50,
	"notify.interval":    "15m",
	"notify.quiet_start": 8,
	"notify.quiet_end":   22,
	"notify.fire_once":   false,
	"dashboard.enabled":  false,
	"dashboard.host":     "127.0.0.1",
	"dashboard.port":     8080,
	"log.file":           "",
	"log.max_size_mb":    10,
	"log.max_backups":    3,
	"log.max_age_days":   28,
}

// NewViper returns a viper instance carrying the defaults and the
// environment binding. Bind flags to it before calling LoadWith.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (or the default location when path is
// empty) on top of the defaults and environment.
func Load(path string) (Config, error) {
	return LoadWith(NewViper(), path)
}

// LoadWith is Load using a caller-prepared viper instance.
//
// A missing file at the default location is not an error. A missing file
// that was named explicitly is.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var file string
	if _, err := os.Stat(resolved); err == nil {
		v.SetConfigFile(resolved)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", resolved, err)
		}
		file = resolved
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("open config: %w", err)
	} else if explicit {
		return Config{}, fmt.Errorf("config file not found: %s", resolved)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = file

	if err := cfg.expand(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c Config) Validate() error {
	var errs []error
	if !c.API.Offline && strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required unless api.offline is set"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive (got %s)", c.API.Timeout))
	}
	if c.API.Retries < 0 {
		errs = append(errs, fmt.Errorf("api.retries cannot be negative (got %d)", c.API.Retries))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sync.interval must be positive (got %s)", c.Sync.Interval))
	}
	if c.Sync.PageLimit < 1 {
		errs = append(errs, fmt.Errorf("sync.page_limit must be at least 1 (got %d)", c.Sync.PageLimit))
	}
	if c.Sync.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("sync.max_pages must be at least 1 (got %d)", c.Sync.MaxPages))
	}
	if c.Notify.Interval <= 0 {
		errs = append(errs, fmt.Errorf("notify.interval must be positive (got %s)", c.Notify.Interval))
	}
	if !validHour(c.Notify.QuietStart) || !validHour(c.Notify.QuietEnd) {
		errs = append(errs, fmt.Errorf("notify quiet hours must be within 0-23 (got %d-%d)", c.Notify.QuietStart, c.Notify.QuietEnd))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port))
	}
	return errors.Join(errs...)
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// expand fills the data paths that default to the XDG data directory and
// resolves "~" in every path.
func (c *Config) expand() error {
	var err error
	if c.Store.Path, err = pathOr(c.Store.Path, filepath.Join(dataDir(), "tourney.db")); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	if c.Session.Path, err = pathOr(c.Session.Path, filepath.Join(dataDir(), "session.yaml")); err != nil {
		return fmt.Errorf("session.path: %w", err)
	}
	if c.Log.File, err = pathOr(c.Log.File, filepath.Join(dataDir(), "logs", "daemon.log")); err != nil {
		return fmt.Errorf("log.file: %w", err)
	}
	return nil
}

func pathOr(path, fallback string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = fallback
	}
	return expandPath(path)
}

// DefaultPath returns $XDG_CONFIG_HOME/tourney/config.toml, falling back to
// ~/.config/tourney/config.toml.
func DefaultPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); dir != "" {
		return filepath.Join(dir, appDir, "config.toml")
	}
	return filepath.Join("~", ".config", appDir, "config.toml")
}

func dataDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, appDir)
	}
	return filepath.Join("~", ".local", "share", appDir)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(DefaultPath())
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

// fileView mirrors Config in the shape of the config file. Durations are
// written as strings so the output can be read back.
type fileView struct {
	API struct {
		BaseURL string `toml:"base_url"`
		Timeout string `toml:"timeout"`
		Retries int    `toml:"retries"`
		Offline bool   `toml:"offline"`
	} `toml:"api"`
	Store struct {
		Path string `toml:"path"`
	} `toml:"store"`
	Session struct {
		Path string `toml:"path"`
	} `toml:"session"`
	Sync struct {
		Interval  string `toml:"interval"`
		PageLimit int    `toml:"page_limit"`
		MaxPages  int    `toml:"max_pages"`
	} `toml:"sync"`
	Notify struct {
		Interval   string `toml:"interval"`
		QuietStart int    `toml:"quiet_start"`
		QuietEnd   int    `toml:"quiet_end"`
		FireOnce   bool   `toml:"fire_once"`
	} `toml:"notify"`
	Dashboard struct {
		Enabled bool   `toml:"enabled"`
		Host    string `toml:"host"`
		Port    int    `toml:"port"`
	} `toml:"dashboard"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`
}

// TOML renders the effective configuration as a config file.
func (c Config) TOML() ([]byte, error) {
	var fv fileView
	fv.API.BaseURL = c.API.BaseURL
	fv.API.Timeout = c.API.Timeout.String()
	fv.API.Retries = c.API.Retries
	fv.API.Offline = c.API.Offline
	fv.Store.Path = c.Store.Path
	fv.Session.Path = c.Session.Path
	fv.Sync.Interval = c.Sync.Interval.String()
	fv.Sync.PageLimit = c.Sync.PageLimit
	fv.Sync.MaxPages = c.Sync.MaxPages
	fv.Notify.Interval = c.Notify.Interval.String()
	fv.Notify.QuietStart = c.Notify.QuietStart
	fv.Notify.QuietEnd = c.Notify.QuietEnd
	fv.Notify.FireOnce = c.Notify.FireOnce
	fv.Dashboard.Enabled = c.Dashboard.Enabled
	fv.Dashboard.Host = c.Dashboard.Host
	fv.Dashboard.Port = c.Dashboard.Port
	fv.Log.File = c.Log.File
	fv.Log.MaxSizeMB = c.Log.MaxSizeMB
	fv.Log.MaxBackups = c.Log.MaxBackups
	fv.Log.MaxAgeDays = c.Log.MaxAgeDays

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fv); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
