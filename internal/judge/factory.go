package judge

import (
	"context"
	"fmt"

	"curator/internal/config"
	"curator/internal/logging"
)

// NewClientFromConfig builds the judge client selected by config.
// Provider resolution happens in config (env keys select providers);
// here an unknown or keyless provider is an error, not a fallback —
// scanning degrades at the call site, never by silently picking a
// different model.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	timeout, err := cfg.JudgeTimeout()
	if err != nil {
		return nil, err
	}

	switch cfg.LLM.Provider {
	case "anthropic", "":
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but no API key configured")
		}
		ac := DefaultAnthropicConfig(cfg.LLM.APIKey)
		ac.Timeout = timeout
		if cfg.LLM.Model != "" {
			ac.Model = cfg.LLM.Model
		}
		if cfg.LLM.BaseURL != "" {
			ac.BaseURL = cfg.LLM.BaseURL
		}
		logging.Judge("Judge client: anthropic model=%s", ac.Model)
		return NewAnthropicClientWithConfig(ac), nil

	case "gemini":
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey: cfg.LLM.APIKey,
			Model:  cfg.LLM.Model,
		})
		if err != nil {
			return nil, err
		}
		logging.Judge("Judge client: gemini model=%s", client.GetModel())
		return client, nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
