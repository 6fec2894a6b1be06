package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/strategy-planner/config"
	"github.com/warp/strategy-planner/config/configs"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, "./data/planner.db", cfg.DB.Path)
	assert.True(t, cfg.Session.AutoSave)
	assert.Equal(t, time.Second, cfg.Session.Debounce)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, "0 0 * * * *", cfg.Backup.Schedule)
	assert.Len(t, cfg.CORS.Origins, 2)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("SESSION_AUTOSAVE", "false")
	t.Setenv("SESSION_DEBOUNCE", "250ms")
	t.Setenv("BACKUP_ENABLED", "true")
	t.Setenv("CORS_ORIGINS", "https://planner.example.com")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, uint16(9090), cfg.HTTP.Port)
	assert.Equal(t, ":memory:", cfg.DB.Path)
	assert.False(t, cfg.Session.AutoSave)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.Debounce)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, []string{"https://planner.example.com"}, cfg.CORS.Origins)
	assert.Equal(t, "json", cfg.Log.SlogFormat())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoggerLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"err":     slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, configs.Logger{Level: in}.SlogLevel(), in)
	}
	assert.Equal(t, "text", configs.Logger{Format: "yaml"}.SlogFormat())
}
