package config

import (
	"os"
	"path/filepath"
	"testing"

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

	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.Production())
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Scrape.TimeoutSecs)
	assert.Equal(t, 800, cfg.Scrape.HostIntervalMS)
	assert.Equal(t, 4, cfg.Scrape.CheckWorkers)
	assert.Equal(t, 3000, cfg.Scrape.MaxExcerptChars)
	assert.Equal(t, 50, cfg.Scrape.UpdateChunkSize)
	assert.Equal(t, 2, cfg.Verify.Workers)
	assert.Equal(t, 50, cfg.Verify.BacklogCap)
	assert.InDelta(t, 0.10, cfg.Verify.PriceTolerance, 0.001)
	assert.Equal(t, 10, cfg.Review.MinDecisions)
	assert.Equal(t, 100, cfg.Review.RecentWindow)
	assert.Equal(t, 3, cfg.Review.MaxNotes)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "0 */6 * * *", cfg.Schedule.Check)
	assert.Contains(t, cfg.Scrape.UserAgent, "StockwatchBot")
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
env: production
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
  secret: hunter2
verify:
  backlog_cap: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Server.Secret)
	assert.Equal(t, 25, cfg.Verify.BacklogCap)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Scrape.CheckWorkers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("STOCKWATCH_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"json info", LogConfig{Level: "info", Format: "json"}, false},
		{"console debug", LogConfig{Level: "debug", Format: "console"}, false},
		{"bad level", LogConfig{Level: "shouting", Format: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InitLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, zap.L())
		})
	}
}
