/*
main.go - Application entry point

PURPOSE:
  The planner binary. "serve" runs the HTTP API; the other commands work
  directly against the database for scripting and inspection.

COMMANDS:
  serve                   Run the HTTP server
  list                    List stored strategies
  export [file]           Write every strategy as a JSON array (stdout if no file)
  import <file> [--merge] Load an exported array (replaces unless --merge)
  validate <id>           Budget validation for one strategy
  flights <id>            Billing-cycle breakdown for one strategy
  csv <id>                Line item CSV for one strategy

CONFIGURATION:
  Environment variables (see config/config.go), overridden by flags:
    --db      SQLite database path (DB_PATH, default ./data/planner.db)
              Use ":memory:" for an in-memory database
    --port    HTTP port for serve (HTTP_PORT, default 8080)

EXAMPLES:
  planner serve --db=./data/planner.db
  planner export backup.json
  planner import backup.json --merge

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment configuration
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/warp/strategy-planner/config"
	"github.com/warp/strategy-planner/store/sqlite"
)

var (
	flagDB   string
	flagPort uint16

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "planner",
	Short:         "Campaign budget strategy planner",
	Long:          "Plan campaign budgets: allocate a client budget across line items and billing-cycle flights.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("db") {
			cfg.DB.Path = flagDB
		}
		if cmd.Flags().Changed("port") {
			cfg.HTTP.Port = flagPort
		}
		logger = newLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (overrides DB_PATH)")
	rootCmd.PersistentFlags().Uint16Var(&flagPort, "port", 0, "HTTP server port (overrides HTTP_PORT)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(c config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Log.SlogLevel()}
	var handler slog.Handler
	if c.Log.SlogFormat() == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler).With("env", c.Env)
}

// openStore opens the configured database, creating its directory.
func openStore() (*sqlite.Store, error) {
	if cfg.DB.Path != ":memory:" {
		if dir := filepath.Dir(cfg.DB.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DB.Path, err)
	}
	return store, nil
}
