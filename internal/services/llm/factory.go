package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
)

// NewCompletionService creates the configured completion provider. When the
// LLM layer is disabled, or no provider has an API key, a disabled service is
// returned so callers fall through to the DOM extraction path.
func NewCompletionService(cfg *common.Config, logger arbor.ILogger) (interfaces.CompletionService, error) {
	if cfg.LLM.Disabled {
		logger.Info().Msg("Completion service disabled by configuration, DOM fallback extraction only")
		return &disabledService{}, nil
	}

	provider := cfg.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderClaude
	}

	switch provider {
	case common.LLMProviderClaude:
		if cfg.Claude.APIKey == "" {
			logger.Warn().Msg("No Anthropic API key configured, DOM fallback extraction only")
			return &disabledService{}, nil
		}
		return NewClaudeService(&cfg.Claude, logger)

	case common.LLMProviderGemini:
		if cfg.Gemini.APIKey == "" {
			logger.Warn().Msg("No Gemini API key configured, DOM fallback extraction only")
			return &disabledService{}, nil
		}
		return NewGeminiService(&cfg.Gemini, logger)

	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", provider)
	}
}

// disabledService satisfies CompletionService when no provider is usable
type disabledService struct{}

func (d *disabledService) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	return "", fmt.Errorf("completion service is disabled")
}

func (d *disabledService) ModelID() string { return "disabled" }

func (d *disabledService) IsAvailable() bool { return false }

func (d *disabledService) Close() error { return nil }
