package driven

import (
	"context"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

// IndexStore owns chunk and embedding lifetime end to end: chunks are
// created at ingest and retired at re-ingest, never edited in place.
// The store is modelled as a sequence of immutable snapshots so that an
// upsert is atomic per document and readers are never exposed to a
// partially embedded document.
type IndexStore interface {
	// Upsert embeds the given chunks, commits them together with the
	// document, and retires every chunk of a previously ingested document
	// with the same ID. All-or-nothing: on error the visible snapshot is
	// unchanged. Returns the new snapshot version.
	//
	// Upsert calls are serialised relative to each other; readers never
	// block on an in-progress writer.
	Upsert(ctx context.Context, doc domain.Document, chunks []domain.Chunk) (string, error)

	// Snapshot returns the current index generation. A query binds to one
	// snapshot for its whole lifetime, even if an upsert completes
	// mid-request. Returns domain.ErrIndexUnavailable when the store is
	// closed or unreachable.
	Snapshot() (IndexSnapshot, error)

	// Close releases resources. Subsequent Snapshot and Upsert calls fail
	// with domain.ErrIndexUnavailable.
	Close() error
}

// IndexSnapshot is one immutable, queryable generation of the index.
type IndexSnapshot interface {
	// Version returns the opaque version token for this generation.
	// Every response is logged against it for reproducibility.
	Version() string

	// EmbeddingModel returns the identifier of the model the snapshot's
	// vectors were produced with. Empty for an empty index.
	EmbeddingModel() string

	// SearchVector returns up to k chunk IDs ranked by cosine similarity
	// to the query embedding.
	SearchVector(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// SearchLexical returns up to k chunk IDs ranked by a BM25 score over
	// chunk text.
	SearchLexical(ctx context.Context, query string, k int) ([]LexicalHit, error)

	// Chunk retrieves a chunk by ID.
	Chunk(id string) (domain.Chunk, bool)

	// Document retrieves a document by ID.
	Document(id string) (domain.Document, bool)

	// ChunkCount returns the number of live chunks.
	ChunkCount() int
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the cosine similarity (0-1 for non-degenerate vectors).
	Score float64
}

// LexicalHit represents a keyword search result.
type LexicalHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the BM25 relevance score.
	Score float64
}
