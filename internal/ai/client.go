package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talkbot/internal/config"
	"talkbot/internal/logger"
)

var (
	ErrMissingAPIKey = errors.New("API key not found")
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// NewProvider builds the provider named in cfg.Provider.
func NewProvider(cfg config.AIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		logger.Successf("OpenAI client initialized with API key")
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case config.ProviderAnthropic:
		logger.Successf("Anthropic client initialized with API key")
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Settings are the per-agent completion parameters.
type Settings struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
