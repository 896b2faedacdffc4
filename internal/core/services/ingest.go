package services

import (
	"context"
	"fmt"

	"github.com/mortar-ai/mortar/internal/chunker"
	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/core/ports/driving"
	"github.com/mortar-ai/mortar/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driving.IngestService = (*Ingestor)(nil)

// Ingestor admits documents into the corpus: chunk, embed, commit.
type Ingestor struct {
	chunker    *chunker.Chunker
	indexStore driven.IndexStore
}

// NewIngestor creates an ingest service.
func NewIngestor(c *chunker.Chunker, indexStore driven.IndexStore) *Ingestor {
	return &Ingestor{
		chunker:    c,
		indexStore: indexStore,
	}
}

// Ingest processes each document independently: a malformed or unembeddable
// document is reported as rejected without aborting the rest of the batch.
// Each successful document commits atomically, superseding any earlier
// ingestion of the same document ID.
func (s *Ingestor) Ingest(ctx context.Context, docs []domain.Document) (domain.IngestReport, error) {
	logger.Section("Ingest")
	logger.Info("Ingesting %d documents", len(docs))

	var report domain.IngestReport

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingest cancelled: %w", err)
		}
		if doc.ID == "" {
			report.Rejected = append(report.Rejected, domain.IngestRejection{
				DocumentID: doc.ID,
				Reason:     "missing document ID",
			})
			continue
		}

		chunks, err := s.chunker.Chunk(doc)
		if err != nil {
			logger.Warn("Chunking %s failed: %v", doc.ID, err)
			report.Rejected = append(report.Rejected, domain.IngestRejection{
				DocumentID: doc.ID,
				Reason:     fmt.Sprintf("chunking: %v", err),
			})
			continue
		}

		version, err := s.indexStore.Upsert(ctx, doc, chunks)
		if err != nil {
			logger.Warn("Upsert %s failed: %v", doc.ID, err)
			report.Rejected = append(report.Rejected, domain.IngestRejection{
				DocumentID: doc.ID,
				Reason:     fmt.Sprintf("indexing: %v", err),
			})
			continue
		}

		logger.Debug("Ingested %s: %d chunks, snapshot %s", doc.ID, len(chunks), version)
		report.Accepted = append(report.Accepted, doc.ID)
		report.SnapshotVersion = version
	}

	// An all-rejected batch still reports the current version.
	if report.SnapshotVersion == "" {
		if snap, err := s.indexStore.Snapshot(); err == nil {
			report.SnapshotVersion = snap.Version()
		}
	}

	logger.Info("Ingest complete: %d accepted, %d rejected", len(report.Accepted), len(report.Rejected))
	return report, nil
}
