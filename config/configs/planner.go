package configs

import "time"

// Storage locates the SQLite database. ":memory:" keeps everything in
// process and is lost on exit.
type Storage struct {
	Path string `env:"PATH" envDefault:"./data/planner.db"`
}

// Session controls how the active strategy is persisted.
type Session struct {
	// AutoSave debounces writes; when false every edit is written at once.
	AutoSave bool          `env:"AUTOSAVE" envDefault:"true"`
	Debounce time.Duration `env:"DEBOUNCE" envDefault:"1s"`
}

// Backup configures the periodic full export. Schedule is a six-field cron
// expression (seconds first).
type Backup struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Schedule string `env:"SCHEDULE" envDefault:"0 0 * * * *"`
	Dir      string `env:"DIR" envDefault:"./backups"`
	// Keep is how many snapshots are retained; 0 keeps all.
	Keep int `env:"KEEP" envDefault:"24"`
}
