package driven

// Redactor scrubs user text before it is embedded, sent to the model or
// logged. PII policy beyond this hook belongs to the caller; the default
// implementation is a passthrough.
type Redactor interface {
	// Redact returns the text with sensitive content removed or masked.
	Redact(text string) string
}

// PassthroughRedactor performs no redaction.
type PassthroughRedactor struct{}

// Redact returns the text unchanged.
func (PassthroughRedactor) Redact(text string) string { return text }
