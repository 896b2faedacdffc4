package domain

import "time"

// PipelineSettings are the policy knobs the orchestrator enforces.
type PipelineSettings struct {
	// MaxQuestionChars rejects longer questions before retrieval.
	MaxQuestionChars int

	// CitationsRequired makes an uncited declarative answer a grounding
	// violation.
	CitationsRequired bool

	// MaxHistoryTurns bounds how many prior conversation turns are
	// included in the assembled prompt.
	MaxHistoryTurns int

	// GenerationRetries bounds silent retries of a failed model call.
	GenerationRetries int

	// RetryBackoff is the initial backoff between generation retries.
	RetryBackoff time.Duration

	// GenerationTimeout bounds a single model call.
	GenerationTimeout time.Duration
}

// DefaultPipelineSettings returns the settings used when the config file
// leaves a field unset.
func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		MaxQuestionChars:  1000,
		CitationsRequired: true,
		MaxHistoryTurns:   6,
		GenerationRetries: 2,
		RetryBackoff:      500 * time.Millisecond,
		GenerationTimeout: 60 * time.Second,
	}
}
