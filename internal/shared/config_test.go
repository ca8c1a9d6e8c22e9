package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Server.BaseURL != "http://localhost:8000" {
			t.Errorf("expected base url http://localhost:8000, got %s", config.Server.BaseURL)
		}

		if config.Callback.Port != 3000 {
			t.Errorf("expected callback port 3000, got %d", config.Callback.Port)
		}

		if config.Storage.Backend != StorageFile || config.Storage.Key != "auth-storage" {
			t.Errorf("unexpected storage defaults: %+v", config.Storage)
		}

		if config.List.PageSize != 20 {
			t.Errorf("expected page size 20, got %d", config.List.PageSize)
		}

		if config.Cache.StaleTime() != 30*time.Second {
			t.Errorf("expected 30s stale time, got %v", config.Cache.StaleTime())
		}

		if config.Server.RequestTimeout() != 0 {
			t.Errorf("expected no request timeout by default, got %v", config.Server.RequestTimeout())
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[server]
base_url = "https://music.example.com"

[storage]
backend = "sqlite"

[list]
page_size = 50
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Server.BaseURL != "https://music.example.com" {
			t.Errorf("expected overridden base url, got %s", config.Server.BaseURL)
		}

		if config.Storage.Backend != StorageSQLite {
			t.Errorf("expected sqlite backend, got %s", config.Storage.Backend)
		}

		if config.Storage.Key != "auth-storage" {
			t.Errorf("missing keys should keep defaults, got %q", config.Storage.Key)
		}

		if config.List.PageSize != 50 {
			t.Errorf("expected page size 50, got %d", config.List.PageSize)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("SaveConfig round trip", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nested", "config.toml")

		config := DefaultConfig()
		config.Callback.Port = 4567
		config.Tasks.Workers = 8

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}

		if loaded.Callback.Port != 4567 || loaded.Tasks.Workers != 8 {
			t.Errorf("saved values not preserved: %+v %+v", loaded.Callback, loaded.Tasks)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name   string
			mutate func(*Config)
		}{
			{name: "bad scheme", mutate: func(c *Config) { c.Server.BaseURL = "ftp://example.com" }},
			{name: "missing host", mutate: func(c *Config) { c.Server.BaseURL = "http://" }},
			{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "redis" }},
			{name: "empty key", mutate: func(c *Config) { c.Storage.Key = "" }},
			{name: "zero page size", mutate: func(c *Config) { c.List.PageSize = 0 }},
			{name: "negative workers", mutate: func(c *Config) { c.Tasks.Workers = -1 }},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})

	t.Run("Callback", func(t *testing.T) {
		c := CallbackConfig{Host: "127.0.0.1", Port: 3000}
		if got := c.RedirectURI(); got != "http://127.0.0.1:3000/callback" {
			t.Errorf("unexpected redirect uri %s", got)
		}
	})
}
