package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	return home
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.File != "" {
		t.Fatalf("expected no config file, got %q", cfg.File)
	}
	if cfg.API.BaseURL != "http://localhost:3000/api/" {
		t.Fatalf("unexpected base url %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 10*time.Second || cfg.API.Retries != 2 {
		t.Fatalf("unexpected api defaults %+v", cfg.API)
	}
	if cfg.Sync.Interval != 15*time.Minute || cfg.Notify.Interval != 15*time.Minute {
		t.Fatalf("unexpected intervals %s / %s", cfg.Sync.Interval, cfg.Notify.Interval)
	}
	if cfg.Sync.PageLimit != 10 || cfg.Sync.MaxPages != 50 {
		t.Fatalf("unexpected paging %+v", cfg.Sync)
	}
	if cfg.Notify.QuietStart != 8 || cfg.Notify.QuietEnd != 22 || cfg.Notify.FireOnce {
		t.Fatalf("unexpected notify defaults %+v", cfg.Notify)
	}

	dataDir := filepath.Join(home, ".local", "share", "tourney")
	if cfg.Store.Path != filepath.Join(dataDir, "tourney.db") {
		t.Fatalf("unexpected store path %q", cfg.Store.Path)
	}
	if cfg.Session.Path != filepath.Join(dataDir, "session.yaml") {
		t.Fatalf("unexpected session path %q", cfg.Session.Path)
	}
	if cfg.Log.File != filepath.Join(dataDir, "logs", "daemon.log") {
		t.Fatalf("unexpected log file %q", cfg.Log.File)
	}
}

func TestLoadReadsDefaultLocation(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "tourney", "config.toml"), `
[api]
base_url = "https://cups.example.com/api/"
timeout = "3s"

[store]
path = "~/cache/t.db"

[notify]
fire_once = true
quiet_start = 20
quiet_end = 6
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.File == "" {
		t.Fatal("expected config file to be recorded")
	}
	if cfg.API.BaseURL != "https://cups.example.com/api/" || cfg.API.Timeout != 3*time.Second {
		t.Fatalf("unexpected api %+v", cfg.API)
	}
	if cfg.Store.Path != filepath.Join(home, "cache", "t.db") {
		t.Fatalf("expected ~ to expand, got %q", cfg.Store.Path)
	}
	if !cfg.Notify.FireOnce || cfg.Notify.QuietStart != 20 || cfg.Notify.QuietEnd != 6 {
		t.Fatalf("unexpected notify %+v", cfg.Notify)
	}
	// Untouched keys keep their defaults.
	if cfg.Sync.PageLimit != 10 {
		t.Fatalf("expected default page limit, got %d", cfg.Sync.PageLimit)
	}
}

func TestLoadHonorsXDGConfigHome(t *testing.T) {
	isolate(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeConfig(t, filepath.Join(xdg, "tourney", "config.toml"), "[sync]\npage_limit = 25\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Sync.PageLimit != 25 {
		t.Fatalf("expected page limit 25, got %d", cfg.Sync.PageLimit)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	writeConfig(t, path, "[api\nbase_url = ")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "[api]\nretries = 5\n")
	t.Setenv("TOURNEY_API_RETRIES", "0")
	t.Setenv("TOURNEY_API_OFFLINE", "true")
	t.Setenv("TOURNEY_SYNC_INTERVAL", "1h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Retries != 0 || !cfg.API.Offline {
		t.Fatalf("expected env override, got %+v", cfg.API)
	}
	if cfg.Sync.Interval != time.Hour {
		t.Fatalf("expected 1h interval, got %s", cfg.Sync.Interval)
	}
}

func TestLoadWithBoundValue(t *testing.T) {
	isolate(t)
	v := NewViper()
	v.Set("dashboard.port", 9999)

	cfg, err := LoadWith(v, "")
	if err != nil {
		t.Fatalf("LoadWith returned error: %v", err)
	}
	if cfg.Dashboard.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", cfg.Dashboard.Port)
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty base url", func(c *Config) { c.API.BaseURL = " " }, "api.base_url"},
		{"empty base url offline", func(c *Config) { c.API.BaseURL = ""; c.API.Offline = true }, ""},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "api.timeout"},
		{"negative retries", func(c *Config) { c.API.Retries = -1 }, "api.retries"},
		{"zero page limit", func(c *Config) { c.Sync.PageLimit = 0 }, "sync.page_limit"},
		{"zero max pages", func(c *Config) { c.Sync.MaxPages = 0 }, "sync.max_pages"},
		{"bad quiet hour", func(c *Config) { c.Notify.QuietEnd = 24 }, "quiet hours"},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg.Sync.Interval = 90 * time.Second

	out, err := cfg.TOML()
	if err != nil {
		t.Fatalf("TOML returned error: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, `interval = "1m30s"`) {
		t.Fatalf("expected duration as string, got:\n%s", text)
	}

	var raw map[string]any
	if _, err := toml.Decode(text, &raw); err != nil {
		t.Fatalf("output is not valid TOML: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dump.toml")
	writeConfig(t, path, text)
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reloading dump failed: %v", err)
	}
	if again.Sync.Interval != cfg.Sync.Interval || again.Store.Path != cfg.Store.Path {
		t.Fatalf("round trip mismatch: %+v vs %+v", again.Sync, cfg.Sync)
	}
}
