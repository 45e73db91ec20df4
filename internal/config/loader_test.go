package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk/chatdesk/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
chat:
  token: test-token
  space_id: AAA
ticketing:
  instance_url: https://example.service-now.com
  username: api_user
  password: secret
gemini:
  api_key: test-key
`

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "gemini-1.5-flash", cfg.Gemini.ModelName)
	assert.Equal(t, 24*time.Hour, cfg.Workflow.Lookback)
	assert.InDelta(t, 0.7, cfg.Workflow.SimilarityThreshold, 0.001)
	assert.Equal(t, 4, cfg.Workflow.MaxConcurrency)
	assert.Equal(t, 3, cfg.Ticketing.MaxRetries)
	assert.False(t, cfg.Webhook.Enabled)

	require.Contains(t, cfg.Scheduler.Tasks, "process_messages")
	assert.True(t, cfg.Scheduler.Tasks["process_messages"].Enabled)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
workflow:
  similarity_threshold: 0.9
  lookback: 2h
logger:
  level: debug
webhook:
  enabled: true
  addr: ":9090"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.9, cfg.Workflow.SimilarityThreshold, 0.001)
	assert.Equal(t, 2*time.Hour, cfg.Workflow.Lookback)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Webhook.Enabled)
	assert.Equal(t, ":9090", cfg.Webhook.Addr)
}

func TestLoadConfig_MissingRequiredFieldsFail(t *testing.T) {
	// No ticketing credentials or gemini key.
	path := writeConfig(t, `
chat:
  token: test-token
  space_id: AAA
`)

	_, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestLoadConfig_InvalidValuesFail(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
workflow:
  similarity_threshold: 1.5
`)

	_, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestLoadConfig_InvalidLogLevelFails(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
logger:
  level: loud
`)

	_, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
