package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			port:             8080,
			storage:          "memory",
			simulateInterval: 2 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "tls cert without key", mutate: func(c *Config) { c.tlsCert = "cert.pem" }, wantErr: "--tls-key"},
		{name: "port too low", mutate: func(c *Config) { c.port = 0 }, wantErr: "invalid port"},
		{name: "port too high", mutate: func(c *Config) { c.port = 70000 }, wantErr: "invalid port"},
		{name: "unknown storage", mutate: func(c *Config) { c.storage = "redis" }, wantErr: "invalid storage"},
		{name: "dir without path", mutate: func(c *Config) { c.storage = "dir" }, wantErr: "--storage-path"},
		{name: "sqlite with path", mutate: func(c *Config) { c.storage = "sqlite"; c.storagePath = "poker.db" }},
		{name: "simulate without interval", mutate: func(c *Config) { c.simulate = true; c.simulateInterval = 0 }, wantErr: "simulate interval"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tc.mutate(&cfg)

			err := cfg.validate()
			switch {
			case tc.wantErr == "" && err != nil:
				t.Fatalf("validate() = %v, want nil", err)
			case tc.wantErr != "" && err == nil:
				t.Fatalf("validate() = nil, want error containing %q", tc.wantErr)
			case tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr):
				t.Fatalf("validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfigScheme(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	if got := cfg.scheme(); got != "http" {
		t.Fatalf("scheme() = %q, want http", got)
	}

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	if got := cfg.scheme(); got != "https" {
		t.Fatalf("scheme() = %q, want https", got)
	}
}

func TestNewCmdReadsEnvironment(t *testing.T) {
	t.Setenv("POKERBOX_PORT", "9090")
	t.Setenv("POKERBOX_STORAGE", "sqlite")

	cfg := &Config{}
	_ = newCmd(cfg)

	if cfg.port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.port)
	}
	if cfg.storage != "sqlite" {
		t.Errorf("storage = %q, want sqlite", cfg.storage)
	}
	if cfg.sessionTimeout != time.Hour {
		t.Errorf("sessionTimeout = %s, want 1h", cfg.sessionTimeout)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pokerbox.env")
	if err := os.WriteFile(path, []byte("POKERBOX_TEST_PREFIX=/planning\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("POKERBOX_TEST_PREFIX", "")
	os.Unsetenv("POKERBOX_TEST_PREFIX")

	if err := loadEnvFile([]string{"--env-file", path}); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv("POKERBOX_TEST_PREFIX"); got != "/planning" {
		t.Fatalf("POKERBOX_TEST_PREFIX = %q, want /planning", got)
	}

	if err := loadEnvFile([]string{"--env-file=" + filepath.Join(t.TempDir(), "missing.env")}); err == nil {
		t.Fatal("loadEnvFile with a missing file = nil, want error")
	}

	t.Setenv("POKERBOX_ENV_FILE", "")
	if err := loadEnvFile(nil); err != nil {
		t.Fatalf("loadEnvFile without a file = %v, want nil", err)
	}
}
