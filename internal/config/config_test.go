package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

func TestDefaultMatchesLauncherConventions(t *testing.T) {
	cfg := Default()
	if cfg.History.File != ".comhistory" {
		t.Fatalf("expected default history file .comhistory, got %q", cfg.History.File)
	}
	if cfg.Env.Extension != "env" {
		t.Fatalf("expected default env extension env, got %q", cfg.Env.Extension)
	}
	if !cfg.Env.Enabled {
		t.Fatalf("expected env injection enabled by default")
	}
	if len(cfg.Launcher.ExceptionCommands) != 1 || cfg.Launcher.ExceptionCommands[0] != "echo" {
		t.Fatalf("expected default exception commands [echo], got %#v", cfg.Launcher.ExceptionCommands)
	}
	if cfg.UI.Backend != "auto" {
		t.Fatalf("expected default ui backend auto, got %q", cfg.UI.Backend)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	cfg := Default()

	changes := map[string]string{
		"history.file":                ".myhistory",
		"env.extension":               ".env",
		"env.enabled":                 "false",
		"launcher.exception_commands": "echo, dir ,type",
		"launcher.shell":              "/bin/bash",
		"ui.backend":                  "HUH",
		"update.check":                "off",
		"update.repository":           "someone/dirshell",
		"update.timeout_ms":           "250",
		"log.level":                   "warning",
	}
	for key, value := range changes {
		if err := cfg.Set(key, value); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	want := map[string]string{
		"history.file":                ".myhistory",
		"env.extension":               ".env",
		"env.enabled":                 "false",
		"launcher.exception_commands": "echo,dir,type",
		"launcher.shell":              "/bin/bash",
		"ui.backend":                  "huh",
		"update.check":                "false",
		"update.repository":           "someone/dirshell",
		"update.timeout_ms":           "250",
		"log.level":                   "warn",
	}
	for key, expected := range want {
		got, err := cfg.Get(key)
		if err != nil {
			t.Fatalf("get %s failed: %v", key, err)
		}
		if got != expected {
			t.Fatalf("%s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestSetRejectsInvalidValues(t *testing.T) {
	cfg := Default()
	cases := map[string]string{
		"history.file":      "nested/history",
		"env.extension":     "  ",
		"env.enabled":       "maybe",
		"ui.backend":        "neon-ui",
		"update.repository": "not-a-slug",
		"update.timeout_ms": "0",
		"log.level":         "loud",
		"unknown.key":       "x",
	}
	for key, value := range cases {
		if err := cfg.Set(key, value); err == nil {
			t.Fatalf("expected %s=%q to be rejected", key, value)
		}
	}
}

func TestSetEmptyExceptionListDisablesShellShortcut(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("launcher.exception_commands", ""); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if cfg.Launcher.ExceptionCommands == nil || len(cfg.Launcher.ExceptionCommands) != 0 {
		t.Fatalf("expected an explicit empty exception list, got %#v", cfg.Launcher.ExceptionCommands)
	}
}

func TestParseAssignment(t *testing.T) {
	key, value, err := ParseAssignment("ui.backend=plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "ui.backend" || value != "plain" {
		t.Fatalf("unexpected assignment: %q=%q", key, value)
	}

	key, value, err = ParseAssignment("launcher.shell=/bin/sh -e")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "launcher.shell" || value != "/bin/sh -e" {
		t.Fatalf("unexpected assignment: %q=%q", key, value)
	}

	if _, _, err := ParseAssignment("no-equals"); err == nil {
		t.Fatalf("expected missing '=' to be rejected")
	}
	if _, _, err := ParseAssignment("=value"); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestLoadFillsMissingSectionsWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[ui]\nbackend = \"tview\"\n\n[history]\nfile = \"../escape\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.UI.Backend != "tview" {
		t.Fatalf("expected tview backend, got %q", cfg.UI.Backend)
	}
	if cfg.History.File != DefaultHistoryFile {
		t.Fatalf("expected unsafe history path to fall back to default, got %q", cfg.History.File)
	}
	if cfg.Env.Extension != DefaultEnvExtension {
		t.Fatalf("expected default env extension, got %q", cfg.Env.Extension)
	}
	if cfg.Update.Repository != DefaultRepository {
		t.Fatalf("expected default repository, got %q", cfg.Update.Repository)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[ui\nbackend ="), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed config to fail")
	}
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG layout only applies to unix-like systems")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, path, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if cfg.History.File != DefaultHistoryFile {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	reloaded, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if reloaded.UI.Backend != cfg.UI.Backend || reloaded.Update.TimeoutMS != cfg.Update.TimeoutMS {
		t.Fatalf("expected reload to match saved defaults")
	}
}

func TestSaveUsesPrivateFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not portable on windows")
	}

	cfg := Default()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config failed: %v", err)
	}
	if perms := info.Mode().Perm(); perms&0o077 != 0 {
		t.Fatalf("expected private permissions, got %o", perms)
	}
}

func TestSaveAtomicWriteProducesParseableConfigUnderConcurrentSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			cfg := Default()
			if idx%2 == 0 {
				cfg.UI.Backend = "huh"
			} else {
				cfg.UI.Backend = "tview"
			}
			if err := Save(path, cfg); err != nil {
				t.Errorf("save failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	bytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config failed: %v", err)
	}
	var parsed Config
	if err := toml.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("expected final config to be parseable TOML, got error: %v\ncontent:\n%s", err, string(bytes))
	}
}
