package configs

import "time"

// HTTP defines configuration for the HTTP server.
type HTTP struct {
	// Port is the TCP port the server listens on. Defaults to 8080.
	Port uint16 `env:"PORT" envDefault:"8080"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// CORS lists allowed origins, comma separated in the environment.
type CORS struct {
	Origins []string `env:"ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
}
