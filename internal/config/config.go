// Package config loads and validates the curator configuration from
// .curator/config.yaml, with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all curator configuration.
type Config struct {
	// LLM judge configuration (scanning, synthesis, merge classification)
	LLM LLMConfig `yaml:"llm"`

	// Safety scanner settings
	Scanner ScannerConfig `yaml:"scanner"`

	// Candidate ingestion settings
	Ingest IngestConfig `yaml:"ingest"`

	// Steering repository and activation settings
	Steering SteeringConfig `yaml:"steering"`

	// Queue store settings
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the language-model judge.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ScannerConfig configures the safety scanning pipeline.
type ScannerConfig struct {
	// UseLLM enables the semantic scanner stage. When false, anything
	// the pattern scanner does not reject lands in NEEDS_REVIEW.
	UseLLM bool `yaml:"use_llm"`

	// Timeout bounds a single semantic scan call.
	Timeout string `yaml:"timeout"`

	// MaxConcurrent bounds parallel per-tip scans in a batch.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// IngestConfig configures candidate filtering.
type IngestConfig struct {
	FeedDir      string   `yaml:"feed_dir"`
	MinScore     int      `yaml:"min_score"`
	LookbackDays int      `yaml:"lookback_days"`
	MinLength    int      `yaml:"min_length"`
	Keywords     []string `yaml:"keywords"`
}

// SteeringConfig configures the document source and activation targets.
type SteeringConfig struct {
	// RepoDir is the steering repository root.
	RepoDir string `yaml:"repo_dir"`

	// GlobalFile is the living configuration document, relative to RepoDir.
	GlobalFile string `yaml:"global_file"`

	// ReviewDir receives proposed-change bundles, relative to RepoDir.
	ReviewDir string `yaml:"review_dir"`

	// ActiveLink is the symlink re-pointed at the accepted document.
	ActiveLink string `yaml:"active_link"`

	// DefaultParent is the section new content is appended under when
	// no target section exists and no category mapping applies.
	DefaultParent string `yaml:"default_parent"`

	// CategoryFiles maps tip categories to per-category skill files.
	CategoryFiles map[string]string `yaml:"category_files"`
}

// StoreConfig configures the tip queue store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures category file logging (see internal/logging).
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns a config populated with working defaults for a
// workspace rooted at ws.
func Default(ws string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			Timeout:  "60s",
		},
		Scanner: ScannerConfig{
			UseLLM:        true,
			Timeout:       "30s",
			MaxConcurrent: 4,
		},
		Ingest: IngestConfig{
			FeedDir:      filepath.Join(ws, ".curator", "feeds"),
			MinScore:     20,
			LookbackDays: 7,
			MinLength:    50,
			Keywords:     []string{"claude", "prompt", "tip", "workflow", "trick", "technique"},
		},
		Steering: SteeringConfig{
			RepoDir:       filepath.Join(home, "claude-steering"),
			GlobalFile:    filepath.Join("global", "CLAUDE.md"),
			ReviewDir:     "review",
			ActiveLink:    filepath.Join(home, ".claude", "CLAUDE.md"),
			DefaultParent: "",
			CategoryFiles: map[string]string{
				"workflow":       "workflows.md",
				"prompt-pattern": "prompts.md",
				"claude-md":      "claude-md-examples.md",
				"command":        "commands.md",
				"hook":           "hooks.md",
			},
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(ws, ".curator", "tips.db"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads .curator/config.yaml under ws, falling back to defaults for
// anything unset, then applies environment overrides.
func Load(ws string) (*Config, error) {
	cfg := Default(ws)

	path := filepath.Join(ws, ".curator", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides pulls secrets and operator overrides from the
// environment. Provider-specific API keys also select the provider when
// none is configured; GEMINI takes precedence over ANTHROPIC.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("CURATOR_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if dir := os.Getenv("CURATOR_STEERING_REPO"); dir != "" {
		c.Steering.RepoDir = dir
	}
	if path := os.Getenv("CURATOR_DB_PATH"); path != "" {
		c.Store.DatabasePath = path
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "gemini", "":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if c.Scanner.MaxConcurrent < 1 {
		return fmt.Errorf("scanner.max_concurrent must be >= 1")
	}
	if _, err := c.JudgeTimeout(); err != nil {
		return err
	}
	if _, err := c.ScanTimeout(); err != nil {
		return err
	}
	return nil
}

// JudgeTimeout parses the LLM timeout, defaulting to 60s.
func (c *Config) JudgeTimeout() (time.Duration, error) {
	return parseTimeout(c.LLM.Timeout, 60*time.Second, "llm.timeout")
}

// ScanTimeout parses the semantic-scan timeout, defaulting to 30s.
func (c *Config) ScanTimeout() (time.Duration, error) {
	return parseTimeout(c.Scanner.Timeout, 30*time.Second, "scanner.timeout")
}

func parseTimeout(s string, def time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

// GlobalDocumentPath resolves the absolute path of the living document.
func (c *Config) GlobalDocumentPath() string {
	return filepath.Join(c.Steering.RepoDir, c.Steering.GlobalFile)
}

// ReviewPath resolves the absolute review bundle directory.
func (c *Config) ReviewPath() string {
	return filepath.Join(c.Steering.RepoDir, c.Steering.ReviewDir)
}
