package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"golang.org/x/time/rate"
)

// ClaudeService implements CompletionService using the Anthropic API
type ClaudeService struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  *anthropic.Client
	limiter *rate.Limiter
	retry   *RetryConfig
}

// NewClaudeService creates a new Claude completion service
func NewClaudeService(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-haiku-3-5-20241022"
	}
	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	claudeConfig.MaxTokens = maxTokens

	interval, err := time.ParseDuration(claudeConfig.RateLimit)
	if err != nil || interval <= 0 {
		interval = time.Second
	}

	client := anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
	)

	service := &ClaudeService{
		config:  claudeConfig,
		logger:  logger,
		client:  &client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry:   NewDefaultRetryConfig(),
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Int("max_tokens", maxTokens).
		Dur("rate_interval", interval).
		Msg("Claude completion service initialized")

	return service, nil
}

// Complete sends a single-shot prompt and returns the model's response text
func (s *ClaudeService) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	startTime := time.Now()
	response, err := withRetry(ctx, s.retry, s.logger, func() (string, error) {
		return s.generateCompletion(ctx, req)
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("prompt_length", len(req.Prompt)).
			Msg("Claude completion failed")
		return "", fmt.Errorf("claude completion failed: %w", err)
	}

	s.logger.Debug().
		Int("prompt_length", len(req.Prompt)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return response, nil
}

func (s *ClaudeService) generateCompletion(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = s.config.Temperature
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(float64(temperature))
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	return response.String(), nil
}

// ModelID returns a stable identity string for cache keying
func (s *ClaudeService) ModelID() string {
	return "claude:" + s.config.Model
}

// IsAvailable reports whether the provider is configured
func (s *ClaudeService) IsAvailable() bool {
	return s.config.APIKey != ""
}

// Close releases provider resources
func (s *ClaudeService) Close() error {
	return nil
}
