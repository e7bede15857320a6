// Package config provides application configuration.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/abelikov/convogate/internal/domain"
)

// Config holds all application configuration, read from the environment.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"development"`

	// AppName namespaces session store entries.
	AppName string `env:"APP_NAME" envDefault:"weather_bot"`

	// MaxConversations caps concurrently open conversations.
	MaxConversations int `env:"MAX_CONVERSATIONS" envDefault:"8"`

	// SessionKeyMode is "unified" (session key = user id) or "random"
	// (fresh key per conversation).
	SessionKeyMode string `env:"SESSION_KEY_MODE" envDefault:"unified"`

	// StoreBackend is "memory" or "sqlite".
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	DBPath       string `env:"DB_PATH" envDefault:":memory:"`

	// EngineProvider is "anthropic" or "scripted" (canned replies, no
	// API key needed).
	EngineProvider  string `env:"ENGINE_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AgentModel      string `env:"AGENT_MODEL" envDefault:"claude-sonnet-4-5"`
	AgentName       string `env:"AGENT_NAME" envDefault:"weather_agent"`

	// DefaultMood and DefaultTemperatureUnit seed every new
	// conversation's auxiliary state.
	DefaultMood            string `env:"DEFAULT_MOOD" envDefault:"Neutral"`
	DefaultTemperatureUnit string `env:"DEFAULT_TEMPERATURE_UNIT" envDefault:"Celsius"`

	// FrontendOrigins lists exact CORS origins; FrontendURLRegex
	// optionally allows a pattern on top.
	FrontendOrigins  []string `env:"FRONTEND_ORIGINS" envSeparator:"," envDefault:"*"`
	FrontendURLRegex string   `env:"FRONTEND_URL_REGEX"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"10"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.MaxConversations < 0 {
		return fmt.Errorf("MAX_CONVERSATIONS must be >= 0")
	}
	switch c.SessionKeyMode {
	case "unified", "random":
	default:
		return fmt.Errorf("SESSION_KEY_MODE must be \"unified\" or \"random\", got %q", c.SessionKeyMode)
	}
	switch c.StoreBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("STORE_BACKEND must be \"memory\" or \"sqlite\", got %q", c.StoreBackend)
	}
	if c.StoreBackend == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty with the sqlite backend")
	}
	switch c.EngineProvider {
	case "anthropic", "scripted":
	default:
		return fmt.Errorf("ENGINE_PROVIDER must be \"anthropic\" or \"scripted\", got %q", c.EngineProvider)
	}
	if c.FrontendURLRegex != "" {
		if _, err := regexp.Compile(c.FrontendURLRegex); err != nil {
			return fmt.Errorf("FRONTEND_URL_REGEX: %w", err)
		}
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// InitialState returns the auxiliary state every new conversation starts
// with.
func (c *Config) InitialState() map[string]string {
	return map[string]string{
		domain.StateKeyMood:            c.DefaultMood,
		domain.StateKeyTemperatureUnit: c.DefaultTemperatureUnit,
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}
