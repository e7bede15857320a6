package config

import (
	"testing"
	"time"

	"github.com/abelikov/convogate/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.AppName != "weather_bot" {
		t.Errorf("expected default app name, got %q", cfg.AppName)
	}
	if cfg.MaxConversations != 8 {
		t.Errorf("expected default cap 8, got %d", cfg.MaxConversations)
	}
	if cfg.SessionKeyMode != "unified" || cfg.StoreBackend != "memory" {
		t.Errorf("unexpected defaults: key mode %q, store %q", cfg.SessionKeyMode, cfg.StoreBackend)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAX_CONVERSATIONS", "3")
	t.Setenv("SESSION_KEY_MODE", "random")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("DB_PATH", "/tmp/sessions.db")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("FRONTEND_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxConversations != 3 || cfg.SessionKeyMode != "random" {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("expected 30s window, got %v", cfg.RateLimitWindow)
	}
	if len(cfg.FrontendOrigins) != 2 || cfg.FrontendOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.FrontendOrigins)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              "8080",
			SessionKeyMode:    "unified",
			StoreBackend:      "memory",
			EngineProvider:    "scripted",
			MaxConversations:  8,
			RateLimitRequests: 10,
			RateLimitWindow:   time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"negative cap", func(c *Config) { c.MaxConversations = -1 }, true},
		{"zero cap allowed", func(c *Config) { c.MaxConversations = 0 }, false},
		{"bad key mode", func(c *Config) { c.SessionKeyMode = "sticky" }, true},
		{"bad store backend", func(c *Config) { c.StoreBackend = "redis" }, true},
		{"sqlite needs path", func(c *Config) { c.StoreBackend = "sqlite"; c.DBPath = "" }, true},
		{"bad engine provider", func(c *Config) { c.EngineProvider = "openai" }, true},
		{"bad origin regex", func(c *Config) { c.FrontendURLRegex = "([" }, true},
		{"zero rate limit", func(c *Config) { c.RateLimitRequests = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitialState(t *testing.T) {
	cfg := &Config{DefaultMood: "Neutral", DefaultTemperatureUnit: "Celsius"}
	state := cfg.InitialState()
	if state[domain.StateKeyMood] != "Neutral" || state[domain.StateKeyTemperatureUnit] != "Celsius" {
		t.Errorf("unexpected initial state: %v", state)
	}
}
