package driven

import "context"

// LLMService provides chat/completion generation.
// Failures surface as *domain.GenerationError so the orchestrator can
// distinguish timeouts and auth failures when deciding retryability.
type LLMService interface {
	// Generate produces a completion for a system prompt and user prompt.
	Generate(ctx context.Context, system, user string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}
