package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/worktally.db")
	if cfg.Database.Path != "/tmp/worktally.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Cache.Backend != CacheBackendMemory {
		t.Fatalf("unexpected cache backend %q", cfg.Cache.Backend)
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Fatalf("unexpected cache ttl %s", cfg.CacheTTL())
	}
	if cfg.Server.APIEndpoint != "/api/v1" || cfg.Server.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected server endpoints %#v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/worktally.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/worktally.db"

[logging]
level = "debug"

[identity]
actor_id = "dev-1"

[server]
http_bind = "0.0.0.0:9090"

[cache]
backend = "redis"
ttl_seconds = 30

[cache.redis]
addr = "cache:6379"
db = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/worktally.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Identity.ActorID != "dev-1" {
		t.Fatalf("unexpected logging/identity %#v %#v", cfg.Logging, cfg.Identity)
	}
	if cfg.Server.HTTPBind != "0.0.0.0:9090" || cfg.Server.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected server config %#v", cfg.Server)
	}
	if cfg.Cache.Backend != CacheBackendRedis || cfg.Cache.Redis.Addr != "cache:6379" || cfg.Cache.Redis.DB != 2 {
		t.Fatalf("unexpected cache config %#v", cfg.Cache)
	}
	if cfg.Cache.Redis.Prefix != "worktally:trackable:" {
		t.Fatalf("expected default redis prefix to survive partial override, got %q", cfg.Cache.Redis.Prefix)
	}
	if cfg.CacheTTL() != 30*time.Second {
		t.Fatalf("unexpected ttl %s", cfg.CacheTTL())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"cache backend": "[cache]\nbackend = \"memcached\"\n",
		"log level":     "[logging]\nlevel = \"loud\"\n",
		"negative ttl":  "[cache]\nttl_seconds = -1\n",
		"endpoints":     "[server]\napi_endpoint = \"/x\"\nmcp_endpoint = \"x/\"\n",
		"redis addr":    "[cache]\nbackend = \"redis\"\n[cache.redis]\naddr = \" \"\n",
		"bad toml":      "[cache\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path, Default("/tmp/default.db")); err == nil {
				t.Fatal("expected Load() error")
			}
		})
	}
}

func TestValidateRequiresDatabasePath(t *testing.T) {
	if err := Default(" ").Validate(); err == nil {
		t.Fatal("expected error for blank database path")
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
