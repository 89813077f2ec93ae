// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env expansion and overrides, duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearOverrides blanks the override variables so the host environment
// cannot leak into a test.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OLLAMA_API_URL", "OLLAMA_MODEL", "PORT", "MURMUR_DB_PATH"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	clearOverrides(t)
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "./test.db"

model:
  base_url: "http://ollama:11434"
  name: "phi3:mini"
  timeout: "10s"

chat:
  max_message_length: 200
  max_context_messages: 6
  strict_rollback: true

idempotency:
  ttl: "1m"
  max_keys: 50

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Model.BaseURL != "http://ollama:11434" {
		t.Errorf("Model.BaseURL = %q", cfg.Model.BaseURL)
	}
	if cfg.Model.Name != "phi3:mini" {
		t.Errorf("Model.Name = %q", cfg.Model.Name)
	}
	if cfg.Model.Timeout != 10*time.Second {
		t.Errorf("Model.Timeout = %v, want 10s", cfg.Model.Timeout)
	}
	if cfg.Model.Provider != ProviderOllama {
		t.Errorf("Model.Provider = %q, want default %q", cfg.Model.Provider, ProviderOllama)
	}
	if cfg.Chat.MaxMessageLength != 200 || cfg.Chat.MaxContextMessages != 6 || !cfg.Chat.StrictRollback {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
	if cfg.Chat.SummaryWorkers != 8 {
		t.Errorf("Chat.SummaryWorkers = %d, want default 8", cfg.Chat.SummaryWorkers)
	}
	if cfg.Idempotency.TTL != time.Minute || cfg.Idempotency.MaxKeys != 50 {
		t.Errorf("Idempotency = %+v", cfg.Idempotency)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	clearOverrides(t)
	path := writeConfig(t, "config.toml", `
[server]
http_addr = ":9000"

[model]
provider = "echo"
timeout = "2s"

[tailscale]
enabled = true
hostname = "murmur-test"
ephemeral = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, ":9000")
	}
	if cfg.Model.Provider != ProviderEcho {
		t.Errorf("Model.Provider = %q, want %q", cfg.Model.Provider, ProviderEcho)
	}
	if cfg.Model.Timeout != 2*time.Second {
		t.Errorf("Model.Timeout = %v, want 2s", cfg.Model.Timeout)
	}
	if !cfg.Tailscale.Enabled || cfg.Tailscale.Hostname != "murmur-test" || !cfg.Tailscale.Ephemeral {
		t.Errorf("Tailscale = %+v", cfg.Tailscale)
	}
	if cfg.Model.Name != "llama3.2:1b" {
		t.Errorf("Model.Name = %q, want default", cfg.Model.Name)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearOverrides(t)
	t.Setenv("TEST_MURMUR_DB", "/var/lib/murmur/chat.db")
	t.Setenv("TEST_TS_KEY", "tskey-abc")

	path := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_MURMUR_DB}"
tailscale:
  auth_key: "${TEST_TS_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Database.Path != "/var/lib/murmur/chat.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Tailscale.AuthKey != "tskey-abc" {
		t.Errorf("Tailscale.AuthKey = %q", cfg.Tailscale.AuthKey)
	}
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	clearOverrides(t)
	t.Setenv("OLLAMA_API_URL", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("PORT", "4000")
	t.Setenv("MURMUR_DB_PATH", ":memory:")

	path := writeConfig(t, "config.yaml", `
server:
  http_addr: ":3001"
model:
  base_url: "http://localhost:11434"
  name: "llama3.2:1b"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Model.BaseURL != "http://gpu-box:11434" {
		t.Errorf("Model.BaseURL = %q", cfg.Model.BaseURL)
	}
	if cfg.Model.Name != "mistral" {
		t.Errorf("Model.Name = %q", cfg.Model.Name)
	}
	if cfg.Server.HTTPAddr != ":4000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoadOrDefault(t *testing.T) {
	clearOverrides(t)

	t.Run("empty path", func(t *testing.T) {
		cfg, err := LoadOrDefault("")
		if err != nil {
			t.Fatalf("LoadOrDefault() returned error: %v", err)
		}
		if cfg.Server.HTTPAddr != ":3001" {
			t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, ":3001")
		}
		if cfg.Model.Timeout != 35*time.Second {
			t.Errorf("Model.Timeout = %v, want 35s", cfg.Model.Timeout)
		}
		if cfg.Chat.MaxMessageLength != 500 || cfg.Chat.MaxContextMessages != 15 {
			t.Errorf("Chat = %+v", cfg.Chat)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("LoadOrDefault() returned error: %v", err)
		}
		if cfg.Model.Name != "llama3.2:1b" {
			t.Errorf("Model.Name = %q", cfg.Model.Name)
		}
	})

	t.Run("broken file is still an error", func(t *testing.T) {
		path := writeConfig(t, "config.yaml", "server: [unclosed")
		if _, err := LoadOrDefault(path); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() should return error for non-existent file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearOverrides(t)
	path := writeConfig(t, "config.yaml", `
model:
  timeout: "soon"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "model.timeout") {
		t.Errorf("error %q should name the field", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without http addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale.Enabled = true
		}, ""},
		{"tailscale without hostname", func(c *Config) {
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = ""
		}, "tailscale.hostname"},
		{"missing database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"relative base url", func(c *Config) { c.Model.BaseURL = "localhost:11434" }, "model.base_url"},
		{"echo ignores base url", func(c *Config) {
			c.Model.Provider = ProviderEcho
			c.Model.BaseURL = ""
		}, ""},
		{"unknown provider", func(c *Config) { c.Model.Provider = "openai" }, "model.provider"},
		{"missing model name", func(c *Config) { c.Model.Name = "" }, "model.name"},
		{"zero timeout", func(c *Config) { c.Model.Timeout = 0 }, "model.timeout"},
		{"zero max length", func(c *Config) { c.Chat.MaxMessageLength = 0 }, "chat.max_message_length"},
		{"zero context", func(c *Config) { c.Chat.MaxContextMessages = 0 }, "chat.max_context_messages"},
		{"zero idempotency keys", func(c *Config) { c.Idempotency.MaxKeys = 0 }, "idempotency"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() returned error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() should fail with %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars_UnsetBecomesEmpty(t *testing.T) {
	t.Setenv("MURMUR_SET", "yes")
	got := expandEnvVars("a=${MURMUR_SET} b=${MURMUR_DEFINITELY_UNSET_VAR}")
	if got != "a=yes b=" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}
