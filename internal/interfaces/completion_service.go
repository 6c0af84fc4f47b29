package interfaces

import "context"

// CompletionRequest is a single-shot prompt for the language model
type CompletionRequest struct {
	// System sets the model's role and output constraints
	System string

	// Prompt contains the extraction instruction plus the content to process
	Prompt string

	// MaxTokens caps the response length, 0 uses the provider default
	MaxTokens int

	// Temperature controls sampling, extraction should stay near zero
	Temperature float32
}

// CompletionService generates text completions used by the extraction
// pipeline. Implementations wrap a specific provider (Claude, Gemini) behind a
// shared rate limiter.
type CompletionService interface {
	// Complete sends the request and returns the raw model response text
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// ModelID returns a stable identity string for cache keying
	ModelID() string

	// IsAvailable reports whether the provider is configured and enabled.
	// When false the extraction pipeline must use the DOM fallback.
	IsAvailable() bool

	// Close releases provider resources
	Close() error
}
