// ABOUTME: Configuration loading and parsing for the murmur server
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Model providers
const (
	ProviderOllama = "ollama"
	ProviderEcho   = "echo"
)

// Config represents the complete murmur configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Model       ModelConfig       `yaml:"model" toml:"model"`
	Chat        ChatConfig        `yaml:"chat" toml:"chat"`
	Idempotency IdempotencyConfig `yaml:"idempotency" toml:"idempotency"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds database configuration. Path ":memory:" keeps
// everything in memory.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ModelConfig describes the inference service
type ModelConfig struct {
	Provider string        `yaml:"provider" toml:"provider"`
	BaseURL  string        `yaml:"base_url" toml:"base_url"`
	Name     string        `yaml:"name" toml:"name"`
	Timeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// ChatConfig holds conversation limits
type ChatConfig struct {
	MaxMessageLength   int  `yaml:"max_message_length" toml:"max_message_length"`
	MaxContextMessages int  `yaml:"max_context_messages" toml:"max_context_messages"`
	StrictRollback     bool `yaml:"strict_rollback" toml:"strict_rollback"`
	SummaryWorkers     int  `yaml:"summary_workers" toml:"summary_workers"`
}

// IdempotencyConfig bounds the Idempotency-Key cache
type IdempotencyConfig struct {
	TTL     time.Duration `yaml:"-" toml:"-"`
	MaxKeys int           `yaml:"max_keys" toml:"max_keys"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: ":3001"},
		Tailscale: TailscaleConfig{
			Hostname: "murmur",
		},
		Database: DatabaseConfig{Path: filepath.Join("data", "murmur.db")},
		Model: ModelConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Name:     "llama3.2:1b",
			Timeout:  35 * time.Second,
		},
		Chat: ChatConfig{
			MaxMessageLength:   500,
			MaxContextMessages: 15,
			SummaryWorkers:     8,
		},
		Idempotency: IdempotencyConfig{
			TTL:     5 * time.Minute,
			MaxKeys: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// OLLAMA_API_URL, OLLAMA_MODEL, PORT and MURMUR_DB_PATH overrides apply.
// Unset fields keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to Default when path is
// empty or does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides applies the environment variables the service has
// always honored. They win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OLLAMA_API_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.HTTPAddr = ":" + v
	}
	if v := os.Getenv("MURMUR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Model.Provider {
	case ProviderOllama:
		u, err := url.Parse(c.Model.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("model.base_url %q must be an absolute URL", c.Model.BaseURL)
		}
	case ProviderEcho:
	default:
		return fmt.Errorf("model.provider %q must be %q or %q", c.Model.Provider, ProviderOllama, ProviderEcho)
	}

	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be positive")
	}

	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("chat.max_message_length must be positive")
	}
	if c.Chat.MaxContextMessages <= 0 {
		return fmt.Errorf("chat.max_context_messages must be positive")
	}

	if c.Idempotency.TTL <= 0 || c.Idempotency.MaxKeys <= 0 {
		return fmt.Errorf("idempotency.ttl and idempotency.max_keys must be positive")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be \"text\" or \"json\"", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Model.TimeoutRaw != "" {
		cfg.Model.Timeout, err = time.ParseDuration(cfg.Model.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing model.timeout %q: %w", cfg.Model.TimeoutRaw, err)
		}
	}

	if cfg.Idempotency.TTLRaw != "" {
		cfg.Idempotency.TTL, err = time.ParseDuration(cfg.Idempotency.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing idempotency.ttl %q: %w", cfg.Idempotency.TTLRaw, err)
		}
	}

	return nil
}
