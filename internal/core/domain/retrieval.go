package domain

// RetrievalOptions configures a hybrid retrieval pass.
type RetrievalOptions struct {
	// TopK is the maximum number of chunks to return.
	TopK int

	// Alpha weights the dense score in the combined score:
	// combined = Alpha*dense + (1-Alpha)*lexical. Defaults to 0.7.
	Alpha float64

	// MinScore drops results whose combined score falls below it.
	// An empty result after filtering is reported as low confidence,
	// not as an error.
	MinScore float64
}

// RetrievedChunk is a single hydrated retrieval hit.
type RetrievedChunk struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Document is the chunk's parent document.
	Document Document

	// DenseScore is the normalised embedding-similarity score.
	DenseScore float64

	// LexicalScore is the normalised keyword score.
	LexicalScore float64

	// CombinedScore is the weighted blend used for ranking.
	CombinedScore float64
}

// RetrievalResult is the ephemeral, per-query output of the retriever.
// It is never persisted beyond the request's audit record.
type RetrievalResult struct {
	// SnapshotVersion identifies the index snapshot the query ran against.
	SnapshotVersion string

	// Chunks are the ranked hits, highest combined score first.
	Chunks []RetrievedChunk

	// LowConfidence is set when no chunk cleared the MinScore threshold.
	// The orchestrator responds with a clarifying question instead of
	// asking the model to answer from nothing.
	LowConfidence bool
}

// CitationTag is a short per-request source label ("S1", "S2", ...).
// Tags map 1:1 to retrieved chunks for the lifetime of a single request
// and are never reused to mean a different chunk within one response.
type CitationTag string

// ViolationKind classifies why a model answer failed grounding.
type ViolationKind string

const (
	// ViolationUnknownCitation means the answer cited a tag outside the
	// valid set for the request.
	ViolationUnknownCitation ViolationKind = "UNKNOWN_CITATION"

	// ViolationMissingCitation means citations were required, the answer
	// made declarative claims, and no citation was used.
	ViolationMissingCitation ViolationKind = "MISSING_CITATION"
)

// GroundingVerdict is the outcome of citation validation for one request.
// It is produced once, consumed by the orchestrator, logged and discarded.
type GroundingVerdict struct {
	// Accepted reports whether the raw answer may be returned.
	Accepted bool

	// UsedCitations are the tags found in the answer, in first-use order.
	UsedCitations []CitationTag

	// Violation is set when Accepted is false.
	Violation ViolationKind
}

// Uses reports whether the verdict recorded a use of the given tag.
func (v GroundingVerdict) Uses(tag CitationTag) bool {
	for _, t := range v.UsedCitations {
		if t == tag {
			return true
		}
	}
	return false
}
