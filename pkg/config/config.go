// Package config loads and saves kanban settings.
//
// Configuration follows the XDG base directory layout:
//   - Config: ~/.config/kanban/config.yaml
//   - Data:   ~/.local/share/kanban/ (default board file)
//
// Environment variables override the file: KANBAN_FILE, KANBAN_BACKEND and
// KANBAN_FORCE_POLLING.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "kanban"

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// BoardFile is a named board file the CLI can open by name.
type BoardFile struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// StorageConfig selects where and how boards are stored.
type StorageConfig struct {
	Path    string `yaml:"path,omitempty"`
	Backend string `yaml:"backend,omitempty"` // json, sqlite; empty means detect from extension
}

// SaveConfig tunes background saving. MaxDelay bounds how long continuous
// edits can postpone a save; zero disables the bound.
type SaveConfig struct {
	MinInterval   time.Duration `yaml:"min_interval,omitempty"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	QueueCapacity int           `yaml:"queue_capacity,omitempty"`
}

// HistoryConfig bounds undo and redo.
type HistoryConfig struct {
	Limit int `yaml:"limit,omitempty"`
}

// WatchConfig controls external change detection.
type WatchConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty"`
	Debounce     time.Duration `yaml:"debounce,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	ForcePoll    bool          `yaml:"force_poll,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage,omitempty"`
	Save    SaveConfig    `yaml:"save,omitempty"`
	History HistoryConfig `yaml:"history,omitempty"`
	Watch   WatchConfig   `yaml:"watch,omitempty"`
	Boards  []BoardFile   `yaml:"boards,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Path: DefaultBoardPath(),
		},
		Save: SaveConfig{
			MinInterval:   500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			QueueCapacity: 100,
		},
		History: HistoryConfig{
			Limit: 100,
		},
		Watch: WatchConfig{
			Debounce:     200 * time.Millisecond,
			PollInterval: 2 * time.Second,
		},
	}
}

// WatchEnabled reports whether external change detection is on. It
// defaults to true.
func (w WatchConfig) WatchEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// ConfigDir returns the XDG config directory.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns the XDG data directory.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultBoardPath is the board file used when nothing else is configured.
func DefaultBoardPath() string {
	dir := DataDir()
	if dir == "" {
		return "kanban.json"
	}
	return filepath.Join(dir, "kanban.json")
}

// Load reads the config file from the XDG config directory and applies
// environment overrides. Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
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

	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	for i := range cfg.Boards {
		cfg.Boards[i].Path = expandHome(cfg.Boards[i].Path)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from KANBAN_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("KANBAN_FILE")); v != "" {
		c.Storage.Path = expandHome(v)
	}
	if v := strings.TrimSpace(os.Getenv("KANBAN_BACKEND")); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("KANBAN_FORCE_POLLING"))) {
	case "1", "true", "yes", "on":
		c.Watch.ForcePoll = true
	}
}

// Validate rejects settings the rest of the program cannot honour.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "", BackendJSON, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	if c.Save.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("save.min_interval: must not be negative"))
	}
	if c.Save.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("save.max_delay: must not be negative"))
	}
	if c.Save.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("save.queue_capacity: must not be negative"))
	}
	if c.History.Limit < 0 {
		errs = append(errs, fmt.Errorf("history.limit: must not be negative"))
	}
	if c.Watch.PollInterval < 0 || c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch: durations must not be negative"))
	}
	return errors.Join(errs...)
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

// FindBoard returns the board file registered under name, or nil.
func (c Config) FindBoard(name string) *BoardFile {
	for i := range c.Boards {
		if strings.EqualFold(c.Boards[i].Name, name) {
			return &c.Boards[i]
		}
	}
	return nil
}

// ResolveFile maps a -file argument to a path: a registered board name
// resolves to its path, anything else is used as given. Empty means the
// configured storage path.
func (c Config) ResolveFile(arg string) string {
	if arg == "" {
		return c.Storage.Path
	}
	if b := c.FindBoard(arg); b != nil {
		return b.Path
	}
	return expandHome(arg)
}

// RegisterBoard adds or updates a named board file.
func (c *Config) RegisterBoard(name, path string) {
	if b := c.FindBoard(name); b != nil {
		b.Path = path
		return
	}
	c.Boards = append(c.Boards, BoardFile{Name: name, Path: path})
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
