// Package driving provides interfaces the core exposes to its callers (primary/inbound ports).
package driving

import (
	"context"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

// AnswerService answers natural-language mortgage questions grounded in
// the ingested corpus.
type AnswerService interface {
	// Answer runs the full pipeline for one question. The returned answer
	// is always one of the three user-visible shapes (grounded answer,
	// clarifying question, safe fallback) or a limit/degraded message;
	// raw provider errors never escape.
	Answer(ctx context.Context, question string, history []domain.ConversationTurn) (domain.Answer, error)
}

// IngestService admits documents into the corpus.
type IngestService interface {
	// Ingest chunks, embeds and commits each document, superseding any
	// earlier ingestion of the same document ID. Per-document failures are
	// reported in the result rather than aborting the batch.
	Ingest(ctx context.Context, docs []domain.Document) (domain.IngestReport, error)
}

// HealthService reports retrieval serviceability.
type HealthService interface {
	// RetrievalHealth returns ok or degraded plus the current snapshot
	// version.
	RetrievalHealth(ctx context.Context) domain.Health
}
