package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default(t.TempDir())

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.True(t, cfg.Scanner.UseLLM)
	assert.Equal(t, 20, cfg.Ingest.MinScore)
	assert.Equal(t, 7, cfg.Ingest.LookbackDays)
	assert.Equal(t, 50, cfg.Ingest.MinLength)
	assert.NotEmpty(t, cfg.Store.DatabasePath)
	assert.NotEmpty(t, cfg.Steering.CategoryFiles["workflow"])
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	ws := t.TempDir()
	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, ".curator", "tips.db"), cfg.Store.DatabasePath)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CURATOR_LLM_MODEL", "")

	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".curator"), 0755))
	yaml := `
llm:
  provider: anthropic
  model: claude-test-model
  timeout: 90s
scanner:
  use_llm: false
  max_concurrent: 2
ingest:
  min_score: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".curator", "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "claude-test-model", cfg.LLM.Model)
	assert.False(t, cfg.Scanner.UseLLM)
	assert.Equal(t, 2, cfg.Scanner.MaxConcurrent)
	assert.Equal(t, 5, cfg.Ingest.MinScore)

	d, err := cfg.JudgeTimeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CURATOR_LLM_MODEL", "claude-override")
	t.Setenv("CURATOR_DB_PATH", "/tmp/override.db")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
	assert.Equal(t, "claude-override", cfg.LLM.Model)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DatabasePath)
}

func TestGeminiKeyTakesPrecedence(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("GEMINI_API_KEY", "gm-test")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gm-test", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad_provider", func(c *Config) { c.LLM.Provider = "ollama" }, false},
		{"no_db_path", func(c *Config) { c.Store.DatabasePath = "" }, false},
		{"zero_concurrency", func(c *Config) { c.Scanner.MaxConcurrent = 0 }, false},
		{"bad_timeout", func(c *Config) { c.LLM.Timeout = "ninety seconds" }, false},
		{"negative_timeout", func(c *Config) { c.Scanner.Timeout = "-5s" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTimeoutDefaults(t *testing.T) {
	cfg := &Config{}

	d, err := cfg.JudgeTimeout()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d)

	d, err = cfg.ScanTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestPathHelpers(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.Steering.RepoDir = "/steer"
	cfg.Steering.GlobalFile = "global/CLAUDE.md"
	cfg.Steering.ReviewDir = "review"

	assert.Equal(t, "/steer/global/CLAUDE.md", cfg.GlobalDocumentPath())
	assert.Equal(t, "/steer/review", cfg.ReviewPath())
}
