package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 85.0, cfg.Engine.FuzzyMatchThreshold, 0.001)
	assert.InDelta(t, 85.0, cfg.Engine.RepostTitleThreshold, 0.001)
	assert.Equal(t, 10, cfg.Engine.RepostScanWindow)
	assert.Equal(t, 14, cfg.Engine.RefreshWindowDays)
	assert.Equal(t, 30, cfg.Engine.StalenessDays)
	assert.InDelta(t, 250000.0, cfg.Engine.ContractMinValue, 0.001)
	assert.Equal(t, 90, cfg.Engine.ContractLookbackDays)
	assert.Equal(t, 5, cfg.Ingest.MaxConcurrent)
	assert.Equal(t, 500, cfg.Ingest.BatchLimit)
	assert.Equal(t, "https://api.adzuna.com/v1/api", cfg.Adzuna.BaseURL)
	assert.Equal(t, "gb", cfg.Adzuna.Country)
	assert.Equal(t, 15, cfg.Adzuna.TimeoutSecs)
	assert.Equal(t, 2500, cfg.Adzuna.DailyBudget)
	assert.Equal(t, 15, cfg.Contracts.TimeoutSecs)
	assert.Equal(t, 1000, cfg.Contracts.DailyBudget)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: signals.db
engine:
  staleness_days: 21
  refresh_window_days: 7
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "signals.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 21, cfg.Engine.StalenessDays)
	assert.Equal(t, 7, cfg.Engine.RefreshWindowDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Non-overridden defaults survive.
	assert.InDelta(t, 85.0, cfg.Engine.FuzzyMatchThreshold, 0.001)
}

func TestEngineWindows(t *testing.T) {
	e := EngineConfig{RefreshWindowDays: 14, StalenessDays: 30}
	assert.Equal(t, 14*24*time.Hour, e.RefreshWindow())
	assert.Equal(t, 30*24*time.Hour, e.StalenessWindow())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	assert.Error(t, err)
}
