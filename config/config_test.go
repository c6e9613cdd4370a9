package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/tokenrank/config"
)

func validConfig() string {
	return `
server:
  host: "127.0.0.1"
  port: 9090

database:
  driver: "postgres"
  dsn: "postgres://tokenrank@localhost/tokenrank"

cache:
  mode: "redis"
  addr: "localhost:6379"

logging:
  level: "debug"
  format: "console"
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, validConfig())

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %s, want postgres", cfg.Database.Driver)
	}
	if cfg.Cache.Mode != "redis" {
		t.Errorf("Cache.Mode = %s, want redis", cfg.Cache.Mode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default read timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("default database driver = %s, want memory", cfg.Database.Driver)
	}
	if cfg.Cache.Mode != "memory" {
		t.Errorf("default cache mode = %s, want memory", cfg.Cache.Mode)
	}
	if cfg.Ingest.MaxBodyBytes != 10<<20 {
		t.Errorf("default max body = %d, want %d", cfg.Ingest.MaxBodyBytes, 10<<20)
	}
	if cfg.Ingest.VolatileTimeout != 500*time.Millisecond {
		t.Errorf("default volatile timeout = %v, want 500ms", cfg.Ingest.VolatileTimeout)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default metrics path = %s, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown database driver",
			content: `
database:
  driver: "mysql"
  dsn: "whatever"
`,
		},
		{
			name: "postgres without dsn",
			content: `
database:
  driver: "postgres"
`,
		},
		{
			name: "unknown cache mode",
			content: `
cache:
  mode: "memcached"
`,
		},
		{
			name: "port out of range",
			content: `
server:
  port: 99999
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := config.Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TOKENRANK_SERVER_PORT", "7777")
	t.Setenv("TOKENRANK_LOG_LEVEL", "warn")
	t.Setenv("TOKENRANK_CACHE_MODE", "memory")

	path := writeConfig(t, validConfig())
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("env override port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env override log level = %s, want warn", cfg.Logging.Level)
	}
	if cfg.Cache.Mode != "memory" {
		t.Errorf("env override cache mode = %s, want memory", cfg.Cache.Mode)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TOKENRANK_DATABASE_DRIVER", "memory")
	t.Setenv("TOKENRANK_SERVER_HOST", "10.0.0.1")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Server.Host != "10.0.0.1" {
		t.Errorf("Server.Host = %s, want 10.0.0.1", cfg.Server.Host)
	}
}

func TestLoadWithFallback(t *testing.T) {
	// Existing file wins.
	path := writeConfig(t, validConfig())
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 from file", cfg.Server.Port)
	}

	// Missing file falls back to env/defaults.
	cfg, err = config.LoadWithFallback("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("LoadWithFallback fallback error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("fallback port = %d, want 8080", cfg.Server.Port)
	}
}
