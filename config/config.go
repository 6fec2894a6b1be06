package config

import (
	"github.com/caarlos0/env/v11"

	"github.com/warp/strategy-planner/config/configs"
)

// Config aggregates all configuration sections for the planner. Fields are
// populated from environment variables using the caarlos0/env library; the
// nested structs are tagged with envPrefix so their fields are parsed with
// that prefix. Use Load to construct a Config.
type Config struct {
	// Env names the deployment environment (dev, prod). Logged at startup.
	Env string `env:"PLANNER_ENV" envDefault:"dev"`

	// HTTP holds configuration for the HTTP server (HTTP_*).
	HTTP configs.HTTP `envPrefix:"HTTP_"`

	// CORS lists the browser origins allowed to call the API (CORS_*).
	CORS configs.CORS `envPrefix:"CORS_"`

	// Log configures the structured logger (LOG_*).
	Log configs.Logger `envPrefix:"LOG_"`

	// DB configures the SQLite database (DB_*).
	DB configs.Storage `envPrefix:"DB_"`

	// Session configures auto-save of the active strategy (SESSION_*).
	Session configs.Session `envPrefix:"SESSION_"`

	// Backup configures the periodic export job (BACKUP_*).
	Backup configs.Backup `envPrefix:"BACKUP_"`
}

// Load reads configuration from environment variables into a Config. All
// fields get their defaults when no environment variable is provided.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
