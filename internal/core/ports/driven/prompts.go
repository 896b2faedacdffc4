package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible
	// default or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptAnswerSystem is the fixed instruction set for grounded
	// answering: use only cited context, cite bracketed IDs exactly, say
	// "don't know" when unsupported, ask a bounded number of clarifying
	// questions. No format placeholders.
	PromptAnswerSystem = "answer_system"

	// PromptClarify is the fixed clarifying-question response used for
	// low-confidence retrieval. No format placeholders.
	PromptClarify = "clarify"
)
