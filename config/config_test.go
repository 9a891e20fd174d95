package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "database:\n  path: \".cache/data.db\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runner.N != 1 {
		t.Fatalf("expected default runner.n=1, got %d", cfg.Runner.N)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected default log format json, got %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	path := writeTempConfig(t, "database:\n  path: \"/original.db\"\n")
	t.Setenv("EDSL_DATABASE_PATH", "/overridden.db")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Path != "/overridden.db" {
		t.Fatalf("expected env override to win, got %q", cfg.Database.Path)
	}
	if cfg.Providers["openai"].APIKey != "sk-test" {
		t.Fatalf("expected openai api key from env, got %q", cfg.Providers["openai"].APIKey)
	}
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	path := writeTempConfig(t, "logging:\n  level: \"verbose\"\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestLoad_RequiresAPIKeyWithRemoteCacheURL(t *testing.T) {
	path := writeTempConfig(t, "remote_cache:\n  url: \"https://cache.example.com\"\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for remote cache url without api key")
	}
}
