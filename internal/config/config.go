// Package config loads anycode settings and owns the model pricing table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all anycode configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Sources    SourcesConfig    `toml:"sources"`
	Daemon     DaemonConfig     `toml:"daemon"`
	Appearance AppearanceConfig `toml:"appearance"`
	Pricing    PricingOverrides `toml:"pricing"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DefaultDays      int      `toml:"default_days"`
	IncludeSubagents bool     `toml:"include_subagents"`
	Engines          []string `toml:"engines,omitempty"`
}

// SourcesConfig overrides where each engine keeps its session logs.
type SourcesConfig struct {
	ClaudeDir string `toml:"claude_dir,omitempty"`
	CodexDir  string `toml:"codex_dir,omitempty"`
	GeminiDir string `toml:"gemini_dir,omitempty"`
}

// DaemonConfig holds settings for the background service.
type DaemonConfig struct {
	Addr            string `toml:"addr"`
	RefreshInterval string `toml:"refresh_interval"`
	ActiveWindow    string `toml:"active_window"`
	IdleTimeout     string `toml:"idle_timeout"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// PricingOverrides allows user-defined pricing for specific models.
type PricingOverrides struct {
	Overrides map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model pricing overrides.
type ModelPricingOverride struct {
	InputPerMTok      *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok     *float64 `toml:"output_per_mtok,omitempty"`
	CacheWritePerMTok *float64 `toml:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DefaultDays:      30,
			IncludeSubagents: true,
		},
		Daemon: DaemonConfig{
			Addr:            "127.0.0.1:8787",
			RefreshInterval: "30s",
			ActiveWindow:    "2m",
			IdleTimeout:     "2m",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "anycode")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "anycode")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
// Pricing overrides from the file are installed into the pricing table.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config file at path.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // user-chosen config path
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	SetPricingOverrides(cfg.Pricing.Overrides)

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // user-chosen config path
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// ClaudeDir returns the Claude data directory: ANYCODE_CLAUDE_DIR, then the
// config file, then ~/.claude.
func (c Config) ClaudeDir() string {
	return resolveDir("ANYCODE_CLAUDE_DIR", c.Sources.ClaudeDir, ".claude")
}

// CodexDir returns the Codex data directory: CODEX_HOME, then the config
// file, then ~/.codex.
func (c Config) CodexDir() string {
	return resolveDir("CODEX_HOME", c.Sources.CodexDir, ".codex")
}

// GeminiDir returns the Gemini data directory: ANYCODE_GEMINI_DIR, then the
// config file, then ~/.gemini.
func (c Config) GeminiDir() string {
	return resolveDir("ANYCODE_GEMINI_DIR", c.Sources.GeminiDir, ".gemini")
}

func resolveDir(env, configured, home string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if configured != "" {
		return configured
	}
	h, _ := os.UserHomeDir()
	return filepath.Join(h, home)
}

// RefreshEvery parses the daemon refresh interval, defaulting to 30s.
func (d DaemonConfig) RefreshEvery() time.Duration {
	return parseDuration(d.RefreshInterval, 30*time.Second)
}

// ActiveFor parses the window within which a modified session counts as
// running, defaulting to 2m.
func (d DaemonConfig) ActiveFor() time.Duration {
	return parseDuration(d.ActiveWindow, 2*time.Minute)
}

// IdleFor parses how long a followed session may stay silent before it is
// reported complete, defaulting to 2m.
func (d DaemonConfig) IdleFor() time.Duration {
	return parseDuration(d.IdleTimeout, 2*time.Minute)
}

// DaemonAddr returns ANYCODE_DAEMON_ADDR when set, else the configured
// daemon address.
func (c Config) DaemonAddr() string {
	if v := os.Getenv("ANYCODE_DAEMON_ADDR"); v != "" {
		return v
	}
	return c.Daemon.Addr
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
