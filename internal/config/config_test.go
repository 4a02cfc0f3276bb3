package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/llm-judge/internal/record"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithLookuper(context.Background(), "", envconfig.MapLookuper(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 25*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
	assert.Equal(t, 20*time.Second, cfg.Selector.Timeout)
	assert.Equal(t, record.SQLiteDriver, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Defaults.FullMarks)
	assert.Equal(t, "prosAndCons", cfg.Defaults.ReportFormat)
	assert.Equal(t, "en", cfg.Defaults.Locale)
	assert.NotEmpty(t, cfg.Defaults.Prompt)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_url: https://gateway.example.com/v1
  timeout: 40s
selector:
  model: gpt-4o-mini
store:
  driver: pgx
  url: postgres://judge@localhost/judge
defaults:
  full_marks: 10
  report_format: multiDimensional
  locale: ja
catalog:
  models: [gpt-4o, qwen-max-latest]
`)

	cfg, err := LoadWithLookuper(context.Background(), path, envconfig.MapLookuper(nil))
	require.NoError(t, err)

	assert.Equal(t, "https://gateway.example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 40*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
	assert.Equal(t, "gpt-4o-mini", cfg.Selector.Model)
	assert.Equal(t, record.PostgresDriver, cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Defaults.FullMarks)
	assert.Equal(t, "multiDimensional", cfg.Defaults.ReportFormat)
	assert.Equal(t, "ja", cfg.Defaults.Locale)
	assert.Equal(t, []string{"gpt-4o", "qwen-max-latest"}, cfg.Catalog.Models)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_url: https://file.example.com/v1
`)

	cfg, err := LoadWithLookuper(context.Background(), path, envconfig.MapLookuper(map[string]string{
		"LLM_JUDGE_BASE_URL": "https://env.example.com/v1",
		"LLM_JUDGE_API_KEY":  "sk-env",
		"LLM_JUDGE_DB_URL":   "file::memory:",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "file::memory:", cfg.Store.URL)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_urll: typo
`)

	_, err := LoadWithLookuper(context.Background(), path, envconfig.MapLookuper(nil))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadWithLookuper(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), envconfig.MapLookuper(nil))
	require.Error(t, err)
}
