// Package config handles loading and saving attnguard configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/attnguard/config.yaml
//   - State:   ~/.local/state/attnguard/ (shared session state file or db)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store backends for the shared session state.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// State file names under StateDir, per backend.
const (
	stateFileName = "state.json"
	stateDBName   = "state.db"
)

// StoreConfig selects and locates the shared state backend.
type StoreConfig struct {
	Backend   string `yaml:"backend,omitempty"`    // file, sqlite
	Path      string `yaml:"path,omitempty"`       // Override state file/db location
	ForcePoll bool   `yaml:"force_poll,omitempty"` // Skip fsnotify, poll only (network mounts)
}

// UIConfig holds panel preference settings.
type UIConfig struct {
	Headless  bool  `yaml:"headless,omitempty"`  // No TUI, decision output only
	AltScreen *bool `yaml:"altscreen,omitempty"` // Full-screen terminal mode
}

// Config is the top-level configuration for attnguard.
type Config struct {
	Store StoreConfig `yaml:"store,omitempty"`
	UI    UIConfig    `yaml:"ui,omitempty"`
	Host  string      `yaml:"host,omitempty"` // Default page host for blocking decisions
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend: BackendFile,
		},
	}
}

// ConfigDir returns the XDG config directory for attnguard.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "attnguard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "attnguard")
}

// StateDir returns the XDG state directory for attnguard.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "attnguard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "attnguard")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// StatePath resolves the shared state location for the configured
// backend, honoring an explicit override with ~ expanded.
func (c Config) StatePath() string {
	if c.Store.Path != "" {
		return expandHome(c.Store.Path)
	}
	dir := StateDir()
	if dir == "" {
		return ""
	}
	if c.Store.Backend == BackendSQLite {
		return filepath.Join(dir, stateDBName)
	}
	return filepath.Join(dir, stateFileName)
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.Store.Backend {
	case "", BackendFile:
		cfg.Store.Backend = BackendFile
	case BackendSQLite:
	default:
		return cfg, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)

	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
