package utils

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// AppConfig holds the application configuration, read from the
// environment at startup.
type AppConfig struct {
	Port        string `env:"PORT" envDefault:"25000"`
	StagingRoot string `env:"STAGING_ROOT" envDefault:"./staging"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	Parallelism int    `env:"PARALLELISM" envDefault:"0"`
	SessionKey  string `env:"SESSION_KEY" envDefault:"manga-optimizer-session-key"`
}

// LoadConfig parses the application configuration from the environment
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment configuration: %w", err)
	}
	return cfg, nil
}
