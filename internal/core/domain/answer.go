package domain

import "time"

// ResponseKind is the user-visible shape of a pipeline response.
// Every terminal pipeline state maps to exactly one kind.
type ResponseKind string

const (
	// ResponseGrounded is a normal answer with verified citations.
	ResponseGrounded ResponseKind = "grounded"

	// ResponseClarifying asks the user a clarifying question because
	// retrieval came back low confidence.
	ResponseClarifying ResponseKind = "clarifying"

	// ResponseFallback is the fixed safe-fallback message used when the
	// model's answer failed grounding or the model call failed.
	ResponseFallback ResponseKind = "fallback"

	// ResponseLimitExceeded rejects an over-length question before any
	// retrieval is performed.
	ResponseLimitExceeded ResponseKind = "limit_exceeded"

	// ResponseDegraded reports that the index store is unreachable.
	ResponseDegraded ResponseKind = "degraded"
)

// Citation is a user-facing source reference attached to an answer.
type Citation struct {
	// Tag is the per-request label used in the answer text ("S1", ...).
	Tag CitationTag

	// Title is the source document title.
	Title string

	// SourceName is the publisher name.
	SourceName string

	// URL is the source location.
	URL string

	// Jurisdiction is the document's jurisdiction tag, if any.
	Jurisdiction string

	// PublishedDate is when the source was published.
	PublishedDate time.Time
}

// ConversationTurn is one prior exchange in the conversation.
type ConversationTurn struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Answer is the pipeline's final response for one request.
type Answer struct {
	// RequestID identifies the request across response and audit record.
	RequestID string

	// Kind is the response shape.
	Kind ResponseKind

	// Text is the response body shown to the user.
	Text string

	// Citations lists only the sources actually cited in Text.
	// Empty for every non-grounded kind.
	Citations []Citation

	// SnapshotVersion is the index snapshot the answer was grounded
	// against. Empty when retrieval never ran.
	SnapshotVersion string

	// Verdict is the grounding verdict, when enforcement ran.
	Verdict *GroundingVerdict
}

// ScoreRecord captures one retrieval hit for the audit log.
type ScoreRecord struct {
	ChunkID       string  `json:"chunk_id"`
	DenseScore    float64 `json:"dense_score"`
	LexicalScore  float64 `json:"lexical_score"`
	CombinedScore float64 `json:"combined_score"`
}

// AuditRecord captures everything needed to replay one request.
// Exactly one record is emitted per terminal pipeline state.
type AuditRecord struct {
	RequestID       string        `json:"request_id"`
	Timestamp       time.Time     `json:"timestamp"`
	QueryChars      int           `json:"query_chars"`
	SnapshotVersion string        `json:"snapshot_version,omitempty"`
	Retrieved       []ScoreRecord `json:"retrieved,omitempty"`
	LowConfidence   bool          `json:"low_confidence,omitempty"`
	PromptChars     int           `json:"prompt_chars,omitempty"`
	DroppedChunks   int           `json:"dropped_chunks,omitempty"`

	// RawModelOutput is the unmodified model answer, or empty with
	// OmissionReason set when generation never produced output.
	RawModelOutput string `json:"raw_model_output,omitempty"`
	OmissionReason string `json:"omission_reason,omitempty"`

	GenerationRetries int    `json:"generation_retries,omitempty"`
	ErrorKind         string `json:"error_kind,omitempty"`

	Verdict      *GroundingVerdict `json:"verdict,omitempty"`
	ResponseKind ResponseKind      `json:"response_kind"`

	// Truncated marks a record written for a request cancelled mid-flight;
	// the fields cover only the stages that completed.
	Truncated bool `json:"truncated,omitempty"`
}

// IngestRejection explains why a document was not ingested.
type IngestRejection struct {
	DocumentID string
	Reason     string
}

// IngestReport summarises an ingest batch.
type IngestReport struct {
	// Accepted lists document IDs that were chunked, embedded and
	// committed.
	Accepted []string

	// Rejected lists documents that failed validation or embedding.
	Rejected []IngestRejection

	// SnapshotVersion is the index version after the batch.
	SnapshotVersion string
}

// HealthStatus values for the retrieval health surface.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Health reports whether retrieval is serviceable.
type Health struct {
	Status          string
	SnapshotVersion string
}
