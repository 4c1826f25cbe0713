package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogvak/dirshell/internal/appdirs"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultHistoryFile  = ".comhistory"
	DefaultEnvExtension = "env"
	DefaultRepository   = "bogvak/dirshell"
)

type HistoryConfig struct {
	File string `toml:"file" json:"file"`
}

type EnvConfig struct {
	Extension string `toml:"extension" json:"extension"`
	Enabled   bool   `toml:"enabled" json:"enabled"`
}

type LauncherConfig struct {
	ExceptionCommands []string `toml:"exception_commands" json:"exception_commands"`
	Shell             string   `toml:"shell,omitempty" json:"shell,omitempty"`
}

type UIConfig struct {
	Backend string `toml:"backend" json:"backend"`
}

type UpdateConfig struct {
	Check      bool   `toml:"check" json:"check"`
	Repository string `toml:"repository" json:"repository"`
	TimeoutMS  int    `toml:"timeout_ms" json:"timeout_ms"`
}

type LogConfig struct {
	Level string `toml:"level" json:"level"`
}

type Config struct {
	Version  int            `toml:"version" json:"version"`
	History  HistoryConfig  `toml:"history" json:"history"`
	Env      EnvConfig      `toml:"env" json:"env"`
	Launcher LauncherConfig `toml:"launcher" json:"launcher"`
	UI       UIConfig       `toml:"ui" json:"ui"`
	Update   UpdateConfig   `toml:"update" json:"update"`
	Log      LogConfig      `toml:"log" json:"log"`
}

func Default() Config {
	return Config{
		Version: 1,
		History: HistoryConfig{File: DefaultHistoryFile},
		Env: EnvConfig{
			Extension: DefaultEnvExtension,
			Enabled:   true,
		},
		Launcher: LauncherConfig{
			ExceptionCommands: []string{"echo"},
		},
		UI: UIConfig{Backend: "auto"},
		Update: UpdateConfig{
			Check:      true,
			Repository: DefaultRepository,
			TimeoutMS:  1500,
		},
		Log: LogConfig{Level: "info"},
	}
}

func LoadOrCreate() (Config, string, error) {
	path, err := appdirs.ConfigFilePath()
	if err != nil {
		return Config{}, "", err
	}

	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if _, err := appdirs.EnsureConfigDir(); err != nil {
			return Config{}, "", err
		}
		if err := Save(path, cfg); err != nil {
			return Config{}, "", err
		}
		return cfg, path, nil
	} else if err != nil {
		return Config{}, "", fmt.Errorf("could not stat config path: %w", err)
	}

	cfg, err = Load(path)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

// Load reads a config file, filling anything left out with defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	bytes, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	if err := toml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config file: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func Save(path string, cfg Config) error {
	cfg.normalize()
	payload, err := Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create config dir: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, ".dirshell-config-*.toml")
	if err != nil {
		return fmt.Errorf("could not create temp config file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := func() {
		_ = os.Remove(tempPath)
	}

	if _, err := tempFile.Write(payload); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not write temp config file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not secure temp config file permissions: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not close temp config file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("could not atomically replace config file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("could not secure config file permissions: %w", err)
	}
	return nil
}

// Marshal renders the config the same way it is written to disk.
func Marshal(cfg Config) ([]byte, error) {
	payload, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not serialize config: %w", err)
	}
	return payload, nil
}

func (c *Config) normalize() {
	defaults := Default()
	if c.Version == 0 {
		c.Version = defaults.Version
	}
	// The history file is always resolved inside the working directory, so
	// only a bare file name is accepted.
	c.History.File = strings.TrimSpace(c.History.File)
	if c.History.File == "" || filepath.Base(c.History.File) != c.History.File {
		c.History.File = defaults.History.File
	}
	if c.Env.Extension == "" {
		c.Env.Extension = defaults.Env.Extension
	}
	if c.Launcher.ExceptionCommands == nil {
		c.Launcher.ExceptionCommands = defaults.Launcher.ExceptionCommands
	}
	c.Launcher.Shell = strings.TrimSpace(c.Launcher.Shell)
	c.UI.Backend = normalizeUIBackend(c.UI.Backend, defaults.UI.Backend)
	if strings.TrimSpace(c.Update.Repository) == "" {
		c.Update.Repository = defaults.Update.Repository
	}
	if c.Update.TimeoutMS <= 0 {
		c.Update.TimeoutMS = defaults.Update.TimeoutMS
	}
	c.Log.Level = normalizeLogLevel(c.Log.Level, defaults.Log.Level)
}

func (c *Config) Set(key, value string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	value = strings.TrimSpace(value)

	switch key {
	case "history.file":
		if value == "" || filepath.Base(value) != value {
			return fmt.Errorf("history.file must be a plain file name")
		}
		c.History.File = value
	case "env.extension":
		if value == "" {
			return fmt.Errorf("env.extension cannot be empty")
		}
		c.Env.Extension = value
	case "env.enabled":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("env.enabled must be boolean")
		}
		c.Env.Enabled = b
	case "launcher.exception_commands":
		c.Launcher.ExceptionCommands = splitCommaList(value)
		if c.Launcher.ExceptionCommands == nil {
			c.Launcher.ExceptionCommands = []string{}
		}
	case "launcher.shell":
		c.Launcher.Shell = value
	case "ui.backend":
		c.UI.Backend = normalizeUIBackend(value, "")
		if c.UI.Backend == "" {
			return fmt.Errorf("ui.backend must be one of auto|bubbletea|huh|tview|plain")
		}
	case "update.check":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("update.check must be boolean")
		}
		c.Update.Check = b
	case "update.repository":
		if strings.Count(value, "/") != 1 {
			return fmt.Errorf("update.repository must look like owner/repo")
		}
		c.Update.Repository = value
	case "update.timeout_ms":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("update.timeout_ms must be a positive number")
		}
		c.Update.TimeoutMS = n
	case "log.level":
		c.Log.Level = normalizeLogLevel(value, "")
		if c.Log.Level == "" {
			return fmt.Errorf("log.level must be one of debug|info|warn|error")
		}
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	c.normalize()
	return nil
}

func (c Config) Get(key string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(key)) {
	case "history.file":
		return c.History.File, nil
	case "env.extension":
		return c.Env.Extension, nil
	case "env.enabled":
		return strconv.FormatBool(c.Env.Enabled), nil
	case "launcher.exception_commands":
		return strings.Join(c.Launcher.ExceptionCommands, ","), nil
	case "launcher.shell":
		return c.Launcher.Shell, nil
	case "ui.backend":
		return c.UI.Backend, nil
	case "update.check":
		return strconv.FormatBool(c.Update.Check), nil
	case "update.repository":
		return c.Update.Repository, nil
	case "update.timeout_ms":
		return strconv.Itoa(c.Update.TimeoutMS), nil
	case "log.level":
		return c.Log.Level, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// ParseAssignment splits a "key=value" override as given on the command line.
func ParseAssignment(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", raw)
	}
	return strings.TrimSpace(key), value, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool: %s", value)
	}
}

func splitCommaList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func normalizeUIBackend(value string, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "auto", "bubbletea", "huh", "tview", "plain":
		return normalized
	default:
		return strings.ToLower(strings.TrimSpace(fallback))
	}
}

func normalizeLogLevel(value string, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "debug", "info", "warn", "error":
		return normalized
	case "warning":
		return "warn"
	default:
		return strings.ToLower(strings.TrimSpace(fallback))
	}
}
