package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/logger"
)

// Default retrieval parameters, used when RetrievalOptions leaves a field
// unset.
const (
	defaultTopK     = 5
	defaultAlpha    = 0.7
	defaultMinScore = 0.25
)

// scoredChunk holds intermediate retrieval results before hydration.
type scoredChunk struct {
	chunkID  string
	dense    float64
	lexical  float64
	combined float64
}

// Retriever performs hybrid dense+lexical retrieval against one index
// snapshot per query.
type Retriever struct {
	indexStore driven.IndexStore
	embedder   driven.EmbeddingService
	defaults   domain.RetrievalOptions
}

// NewRetriever creates a retriever. The defaults are applied wherever a
// per-query option is zero.
func NewRetriever(
	indexStore driven.IndexStore,
	embedder driven.EmbeddingService,
	defaults domain.RetrievalOptions,
) *Retriever {
	if defaults.TopK <= 0 {
		defaults.TopK = defaultTopK
	}
	if defaults.Alpha <= 0 {
		defaults.Alpha = defaultAlpha
	}
	if defaults.MinScore <= 0 {
		defaults.MinScore = defaultMinScore
	}
	return &Retriever{
		indexStore: indexStore,
		embedder:   embedder,
		defaults:   defaults,
	}
}

// Retrieve runs hybrid retrieval for the query. The query binds to one
// snapshot for its whole lifetime, so a concurrent upsert never changes what
// this call sees.
//
// An empty result after the min-score filter is reported through
// RetrievalResult.LowConfidence, not as an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts domain.RetrievalOptions) (domain.RetrievalResult, error) {
	logger.Section("Retrieval")
	opts = r.fillDefaults(opts)
	logger.Debug("Query: %q (k=%d, alpha=%.2f, min_score=%.2f)", query, opts.TopK, opts.Alpha, opts.MinScore)

	query = strings.TrimSpace(query)
	if query == "" {
		return domain.RetrievalResult{LowConfidence: true}, nil
	}

	snap, err := r.indexStore.Snapshot()
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("binding index snapshot: %w", err)
	}
	result := domain.RetrievalResult{SnapshotVersion: snap.Version()}

	if snap.ChunkCount() == 0 {
		logger.Debug("Index snapshot %s is empty", snap.Version())
		result.LowConfidence = true
		return result, nil
	}

	// The snapshot records the model its vectors were built with. Querying
	// it with a different model is an invariant violation, not a retryable
	// condition.
	if model := snap.EmbeddingModel(); model != "" && model != r.embedder.ModelName() {
		return domain.RetrievalResult{}, fmt.Errorf(
			"snapshot %s built with %q, query model is %q: %w",
			snap.Version(), model, r.embedder.ModelName(), domain.ErrEmbeddingModelMismatch,
		)
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, &domain.EmbeddingError{Model: r.embedder.ModelName(), Err: err}
	}

	// Fan out to 2k on each list to leave re-ranking headroom after fusion.
	fanOut := 2 * opts.TopK

	var vectorHits []driven.VectorHit
	var lexicalHits []driven.LexicalHit
	var vectorErr, lexicalErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = snap.SearchVector(ctx, queryVec, fanOut)
	}()
	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = snap.SearchLexical(ctx, query, fanOut)
	}()
	wg.Wait()

	if vectorErr != nil {
		return domain.RetrievalResult{}, fmt.Errorf("vector search: %w", vectorErr)
	}
	if lexicalErr != nil {
		return domain.RetrievalResult{}, fmt.Errorf("lexical search: %w", lexicalErr)
	}
	logger.Debug("Fan-out: %d vector hits, %d lexical hits", len(vectorHits), len(lexicalHits))

	merged := fuse(vectorHits, lexicalHits, opts.Alpha)

	hydrated := r.hydrate(snap, merged)
	sortRanked(hydrated)

	if len(hydrated) > opts.TopK {
		hydrated = hydrated[:opts.TopK]
	}

	kept := hydrated[:0]
	for _, rc := range hydrated {
		if rc.CombinedScore >= opts.MinScore {
			kept = append(kept, rc)
		}
	}

	result.Chunks = kept
	result.LowConfidence = len(kept) == 0
	if result.LowConfidence {
		logger.Info("Retrieval below confidence threshold for snapshot %s", snap.Version())
	} else {
		logger.Debug("Retrieved %d chunks from snapshot %s", len(kept), snap.Version())
	}
	return result, nil
}

// fillDefaults resolves zero-valued options against the retriever defaults.
func (r *Retriever) fillDefaults(opts domain.RetrievalOptions) domain.RetrievalOptions {
	if opts.TopK <= 0 {
		opts.TopK = r.defaults.TopK
	}
	if opts.Alpha <= 0 {
		opts.Alpha = r.defaults.Alpha
	}
	if opts.MinScore <= 0 {
		opts.MinScore = r.defaults.MinScore
	}
	return opts
}

// fuse merges the two ranked lists by chunk ID. Scores are min-max
// normalised within each list; a chunk present in only one list contributes
// 0 for the other signal.
func fuse(vectorHits []driven.VectorHit, lexicalHits []driven.LexicalHit, alpha float64) []scoredChunk {
	denseScores := make([]float64, len(vectorHits))
	for i, hit := range vectorHits {
		denseScores[i] = hit.Score
	}
	normalize(denseScores)

	lexicalScores := make([]float64, len(lexicalHits))
	for i, hit := range lexicalHits {
		lexicalScores[i] = hit.Score
	}
	normalize(lexicalScores)

	byID := make(map[string]*scoredChunk)
	order := make([]string, 0, len(vectorHits)+len(lexicalHits))

	for i, hit := range vectorHits {
		sc, ok := byID[hit.ChunkID]
		if !ok {
			sc = &scoredChunk{chunkID: hit.ChunkID}
			byID[hit.ChunkID] = sc
			order = append(order, hit.ChunkID)
		}
		sc.dense = denseScores[i]
	}
	for i, hit := range lexicalHits {
		sc, ok := byID[hit.ChunkID]
		if !ok {
			sc = &scoredChunk{chunkID: hit.ChunkID}
			byID[hit.ChunkID] = sc
			order = append(order, hit.ChunkID)
		}
		sc.lexical = lexicalScores[i]
	}

	merged := make([]scoredChunk, 0, len(order))
	for _, id := range order {
		sc := byID[id]
		sc.combined = alpha*sc.dense + (1-alpha)*sc.lexical
		merged = append(merged, *sc)
	}
	return merged
}

// normalize rescales scores to [0, 1] in place by dividing by the list
// maximum. Cosine similarity and BM25 are non-negative, so proportional
// scaling preserves relative strength; the rare negative cosine clamps to 0.
func normalize(scores []float64) {
	var maxScore float64
	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
			s = 0
		}
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore == 0 {
		return
	}
	for i := range scores {
		scores[i] /= maxScore
	}
}

// hydrate resolves chunk IDs to full chunks and parent documents. A chunk or
// document missing from the snapshot is skipped; within one snapshot that
// only happens if the index is corrupt.
func (r *Retriever) hydrate(snap driven.IndexSnapshot, merged []scoredChunk) []domain.RetrievedChunk {
	hydrated := make([]domain.RetrievedChunk, 0, len(merged))
	for _, sc := range merged {
		chunk, ok := snap.Chunk(sc.chunkID)
		if !ok {
			logger.Warn("Chunk %s missing from snapshot %s, skipping", sc.chunkID, snap.Version())
			continue
		}
		doc, ok := snap.Document(chunk.DocumentID)
		if !ok {
			logger.Warn("Document %s missing from snapshot %s, skipping", chunk.DocumentID, snap.Version())
			continue
		}
		hydrated = append(hydrated, domain.RetrievedChunk{
			Chunk:         chunk,
			Document:      doc,
			DenseScore:    sc.dense,
			LexicalScore:  sc.lexical,
			CombinedScore: sc.combined,
		})
	}
	return hydrated
}

// sortRanked orders hits by combined score descending. Ties break by
// document recency (newest ingested first), then document ID, then ordinal,
// so identical inputs always produce identical rankings.
func sortRanked(chunks []domain.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if !a.Document.IngestedDate.Equal(b.Document.IngestedDate) {
			return a.Document.IngestedDate.After(b.Document.IngestedDate)
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.Ordinal < b.Chunk.Ordinal
	})
}
