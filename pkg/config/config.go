package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for erd-engine. Values come from
// config.yaml with environment variable overrides; secrets (the upstream
// credentials) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// CORSOrigin is the frontend origin allowed to call the API.
	CORSOrigin string `yaml:"cors_origin" env:"CORS_ORIGIN" env-default:"http://localhost:3000"`

	// Upstream Baserow API configuration
	Baserow BaserowConfig `yaml:"baserow"`
}

// BaserowConfig holds upstream API settings. Email and password are
// secrets and therefore env-only.
type BaserowConfig struct {
	APIURL         string `yaml:"api_url" env:"BASEROW_API_URL" env-default:"https://api.baserow.io/api"`
	Email          string `yaml:"-" env:"BASEROW_EMAIL"`
	Password       string `yaml:"-" env:"BASEROW_PASSWORD"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"BASEROW_TIMEOUT_SECONDS" env-default:"30"`
}

// Timeout returns the upstream request timeout.
func (c *BaserowConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable
// overrides; when no config.yaml exists, the environment alone is used.
// The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if cfg.Baserow.Email == "" || cfg.Baserow.Password == "" {
		return nil, fmt.Errorf("BASEROW_EMAIL and BASEROW_PASSWORD are required")
	}

	return cfg, nil
}
