package domain

import "time"

// Document represents a corpus source document with metadata.
// It is the canonical representation after normalisation and is immutable
// once ingested; re-ingesting the same source supersedes the old document
// rather than mutating it.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// SourceName is the human-readable publisher name (e.g. "CMHC").
	SourceName string

	// URL is the original location of the document.
	URL string

	// Title is the page or document title.
	Title string

	// Jurisdiction tags the legal jurisdiction the document applies to
	// (e.g. "Ontario", "Federal"). Empty when not jurisdiction-specific.
	Jurisdiction string

	// PublishedDate is when the source published the content.
	PublishedDate time.Time

	// IngestedDate is when the document entered the corpus.
	// Re-ingestion produces a new document with a later IngestedDate.
	IngestedDate time.Time

	// RawText is the cleaned prose content. Boilerplate and navigation
	// text are stripped upstream by the corpus loader.
	RawText string
}

// Chunk is a bounded segment of a document and the unit of retrieval.
// Chunks are derived deterministically from a document and a chunking
// policy; the same (text, policy) pair always yields the same chunks.
type Chunk struct {
	// ID is the unique identifier for the chunk. It is stable across
	// re-chunking only while the document text and policy are unchanged.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Ordinal is the position of the chunk within the document.
	Ordinal int

	// Text is the chunk content.
	Text string

	// Span is the half-open character range [Start, End) of the chunk
	// within the document's raw text.
	Span CharSpan

	// TokenCount is the number of tokens in the chunk.
	TokenCount int

	// Embedding is the vector representation. Populated by the index
	// store at upsert time; empty until then.
	Embedding []float32
}

// CharSpan is a half-open character range within a document.
type CharSpan struct {
	Start int
	End   int
}
