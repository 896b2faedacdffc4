package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortar-ai/mortar/internal/adapters/driven/index/memory"
	"github.com/mortar-ai/mortar/internal/core/domain"
)

// seedDoc ingests a document with one chunk per text.
func seedDoc(t *testing.T, store *memory.Store, docID string, ingested time.Time, texts ...string) {
	t.Helper()
	doc := domain.Document{
		ID:           docID,
		SourceName:   "test",
		Title:        docID,
		IngestedDate: ingested,
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         docID + "-c" + string(rune('0'+i)),
			DocumentID: docID,
			Ordinal:    i,
			Text:       text,
			TokenCount: len(strings.Fields(text)),
		}
	}
	_, err := store.Upsert(context.Background(), doc, chunks)
	require.NoError(t, err)
}

func newTestRetriever(store *memory.Store, embedder *fakeEmbedder) *Retriever {
	return NewRetriever(store, embedder, domain.RetrievalOptions{
		TopK:     3,
		Alpha:    0.7,
		MinScore: 0.05,
	})
}

func TestRetrieveRanksTopicalOverlapFirst(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)
	seedDoc(t, store, "downpayment-ontario", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"The minimum down payment in Ontario is 5 percent of the purchase price up to CAD 500,000.",
		"For homes between CAD 500,000 and CAD 1,000,000 the down payment rises on the portion above the threshold.",
		"Mortgage default insurance is required when the down payment is below 20 percent.",
	)

	retriever := newTestRetriever(store, embedder)
	result, err := retriever.Retrieve(context.Background(), "What is the minimum down payment in Ontario?", domain.RetrievalOptions{TopK: 3})
	require.NoError(t, err)

	assert.False(t, result.LowConfidence)
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, "downpayment-ontario-c0", result.Chunks[0].Chunk.ID)
	assert.NotEmpty(t, result.SnapshotVersion)

	// Hits come back hydrated with the parent document.
	for _, rc := range result.Chunks {
		assert.Equal(t, "downpayment-ontario", rc.Document.ID)
		assert.NotEmpty(t, rc.Chunk.Text)
	}

	// Ranked descending by combined score.
	for i := 1; i < len(result.Chunks); i++ {
		assert.GreaterOrEqual(t, result.Chunks[i-1].CombinedScore, result.Chunks[i].CombinedScore)
	}
}

func TestRetrieveDeterministicAcrossReruns(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)
	seedDoc(t, store, "doc-a", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"Fixed rate mortgages lock the interest rate for the full term.",
		"Variable rate mortgages track the lender prime rate.",
	)
	seedDoc(t, store, "doc-b", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"Open mortgages allow prepayment without penalty.",
		"Closed mortgages limit prepayment privileges.",
	)

	retriever := newTestRetriever(store, embedder)

	first, err := retriever.Retrieve(context.Background(), "mortgage rate prepayment", domain.RetrievalOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, first.Chunks)

	for i := 0; i < 5; i++ {
		again, err := retriever.Retrieve(context.Background(), "mortgage rate prepayment", domain.RetrievalOptions{})
		require.NoError(t, err)
		require.Len(t, again.Chunks, len(first.Chunks))
		for j := range first.Chunks {
			assert.Equal(t, first.Chunks[j].Chunk.ID, again.Chunks[j].Chunk.ID)
			assert.Equal(t, first.Chunks[j].CombinedScore, again.Chunks[j].CombinedScore)
		}
	}
}

func TestRetrieveLowConfidenceBelowMinScore(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)
	seedDoc(t, store, "doc-a", time.Now(),
		"Amortization periods commonly run twenty five years.",
	)

	retriever := NewRetriever(store, embedder, domain.RetrievalOptions{
		TopK:     3,
		Alpha:    0.7,
		MinScore: 0.999,
	})

	// Unrelated query: normalised scores cannot clear an extreme floor.
	result, err := retriever.Retrieve(context.Background(), "zzz qqq xxx", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.True(t, result.LowConfidence)
	assert.Empty(t, result.Chunks)
	assert.NotEmpty(t, result.SnapshotVersion)
}

func TestRetrieveEmptyIndexIsLowConfidence(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)

	retriever := newTestRetriever(store, embedder)
	result, err := retriever.Retrieve(context.Background(), "down payment", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.True(t, result.LowConfidence)
	assert.Empty(t, result.Chunks)
}

func TestRetrieveBlankQueryIsLowConfidence(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)

	retriever := newTestRetriever(store, embedder)
	result, err := retriever.Retrieve(context.Background(), "   ", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.True(t, result.LowConfidence)
}

func TestRetrieveClosedStoreIsUnavailable(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)
	require.NoError(t, store.Close())

	retriever := newTestRetriever(store, embedder)
	_, err := retriever.Retrieve(context.Background(), "down payment", domain.RetrievalOptions{})

	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestRetrieveEmbeddingModelMismatch(t *testing.T) {
	ingestEmbedder := &fakeEmbedder{model: "embed-v1"}
	store := memory.NewStore(ingestEmbedder)
	seedDoc(t, store, "doc-a", time.Now(), "Mortgage term lengths vary by lender.")

	queryEmbedder := &fakeEmbedder{model: "embed-v2"}
	retriever := newTestRetriever(store, queryEmbedder)

	_, err := retriever.Retrieve(context.Background(), "mortgage term", domain.RetrievalOptions{})

	assert.ErrorIs(t, err, domain.ErrEmbeddingModelMismatch)
}

func TestRetrieveCapsToTopK(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)
	seedDoc(t, store, "doc-a", time.Now(),
		"mortgage rates overview one",
		"mortgage rates overview two",
		"mortgage rates overview three",
		"mortgage rates overview four",
		"mortgage rates overview five",
	)

	retriever := NewRetriever(store, embedder, domain.RetrievalOptions{TopK: 2, Alpha: 0.7, MinScore: 0.01})
	result, err := retriever.Retrieve(context.Background(), "mortgage rates overview", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.Chunks), 2)
	assert.False(t, result.LowConfidence)
}

func TestRetrieveTieBreakPrefersNewerDocument(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewStore(embedder)

	// Identical chunk text in two documents forces a score tie; the newer
	// ingestion must win.
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDoc(t, store, "doc-old", older, "stress test qualifying rate rules")
	seedDoc(t, store, "doc-new", newer, "stress test qualifying rate rules")

	retriever := newTestRetriever(store, embedder)
	result, err := retriever.Retrieve(context.Background(), "stress test qualifying rate", domain.RetrievalOptions{})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "doc-new", result.Chunks[0].Document.ID)
	assert.Equal(t, "doc-old", result.Chunks[1].Document.ID)
}

func TestNormalizeProportionalScaling(t *testing.T) {
	scores := []float64{2, 1, 0.5, -1}
	normalize(scores)

	assert.Equal(t, []float64{1, 0.5, 0.25, 0}, scores)
}

func TestNormalizeAllZero(t *testing.T) {
	scores := []float64{0, 0}
	normalize(scores)

	assert.Equal(t, []float64{0, 0}, scores)
}
