// Package config loads warmline configuration from YAML with environment
// overrides. Secrets (channel credentials, API keys) normally arrive via the
// environment; the file carries tuning knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all warmline configuration.
type Config struct {
	// HTTP server settings
	Server ServerConfig `yaml:"server"`

	// LINE channel credentials
	Line LineConfig `yaml:"line"`

	// Gemini generation backend
	Gemini GeminiConfig `yaml:"gemini"`

	// Admission limits
	Limits LimitsConfig `yaml:"limits"`

	// Reply shaping
	Reply ReplyConfig `yaml:"reply"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LineConfig configures the LINE Messaging API channel.
type LineConfig struct {
	ChannelSecret      string `yaml:"channel_secret"`
	ChannelAccessToken string `yaml:"channel_access_token"`
}

// GeminiConfig configures the generation backend.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// LimitsConfig configures admission: cooldown, quotas, dedup bound, and the
// idle TTL used when the daily reset sweeps sessions.
type LimitsConfig struct {
	Cooldown       string `yaml:"cooldown"`
	MaxPerSender   int    `yaml:"max_per_sender"`
	MaxGlobal      int    `yaml:"max_global"`
	DedupCapacity  int    `yaml:"dedup_capacity"`
	SessionIdleTTL string `yaml:"session_idle_ttl"`
	HistoryTurns   int    `yaml:"history_turns"`
}

// ReplyConfig configures reply budgets and the blocked-term list.
type ReplyConfig struct {
	ShortInputRunes  int    `yaml:"short_input_runes"`
	ShortBudget      int    `yaml:"short_budget"`
	LongBudget       int    `yaml:"long_budget"`
	BlockedTermsFile string `yaml:"blocked_terms_file"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Limits: LimitsConfig{
			Cooldown:       "2500ms",
			MaxPerSender:   20,
			MaxGlobal:      300,
			DedupCapacity:  512,
			SessionIdleTTL: "72h",
			HistoryTurns:   10,
		},
		Reply: ReplyConfig{
			ShortInputRunes: 12,
			ShortBudget:     20,
			LongBudget:      50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks that required credentials are present and durations parse.
func (c *Config) Validate() error {
	if c.Line.ChannelSecret == "" {
		return fmt.Errorf("line.channel_secret is required (or LINE_CHANNEL_SECRET)")
	}
	if c.Line.ChannelAccessToken == "" {
		return fmt.Errorf("line.channel_access_token is required (or LINE_CHANNEL_ACCESS_TOKEN)")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required (or GEMINI_API_KEY)")
	}
	for name, value := range map[string]string{
		"limits.cooldown":         c.Limits.Cooldown,
		"limits.session_idle_ttl": c.Limits.SessionIdleTTL,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// CooldownDuration returns the parsed cooldown interval.
func (c *Config) CooldownDuration() time.Duration {
	d, err := time.ParseDuration(c.Limits.Cooldown)
	if err != nil {
		return 2500 * time.Millisecond
	}
	return d
}

// SessionIdleTTLDuration returns the parsed idle TTL.
func (c *Config) SessionIdleTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.Limits.SessionIdleTTL)
	if err != nil {
		return 72 * time.Hour
	}
	return d
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
