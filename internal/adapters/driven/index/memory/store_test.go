package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

// fakeEmbedder produces deterministic bag-of-words style vectors so that
// cosine similarity tracks term overlap.
type fakeEmbedder struct {
	model    string
	embedErr error
}

const fakeDims = 64

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vec := make([]float32, fakeDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range word {
			h = h*31 + uint32(r)
		}
		vec[h%fakeDims]++
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return fakeDims }

func (f *fakeEmbedder) ModelName() string {
	if f.model != "" {
		return f.model
	}
	return "fake-embed-1"
}

func (f *fakeEmbedder) Close() error { return nil }

func testDoc(id, text string) (domain.Document, []domain.Chunk) {
	doc := domain.Document{ID: id, SourceName: "test", RawText: text}
	chunk := domain.Chunk{
		ID:         id + "-c0",
		DocumentID: id,
		Ordinal:    0,
		Text:       text,
		TokenCount: len(strings.Fields(text)),
	}
	return doc, []domain.Chunk{chunk}
}

func TestStore_UpsertAndSearch(t *testing.T) {
	store := NewStore(&fakeEmbedder{})
	ctx := context.Background()

	doc, chunks := testDoc("doc-1", "minimum down payment rules for insured mortgages")
	version, err := store.Upsert(ctx, doc, chunks)
	require.NoError(t, err)
	assert.NotEmpty(t, version)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, version, snap.Version())
	assert.Equal(t, "fake-embed-1", snap.EmbeddingModel())
	assert.Equal(t, 1, snap.ChunkCount())

	hits, err := snap.SearchLexical(ctx, "down payment", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1-c0", hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestStore_SupersededDocumentNotVisible(t *testing.T) {
	store := NewStore(&fakeEmbedder{})
	ctx := context.Background()

	doc, chunks := testDoc("doc-1", "old rules about amortization periods")
	_, err := store.Upsert(ctx, doc, chunks)
	require.NoError(t, err)

	// Re-ingest the same document with different content: the old chunk
	// must be retired entirely.
	newDoc := domain.Document{ID: "doc-1", SourceName: "test", RawText: "new amortization guidance"}
	newChunks := []domain.Chunk{{
		ID: "doc-1-c0-v2", DocumentID: "doc-1", Text: newDoc.RawText,
		TokenCount: 3,
	}}
	_, err = store.Upsert(ctx, newDoc, newChunks)
	require.NoError(t, err)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ChunkCount())

	_, ok := snap.Chunk("doc-1-c0")
	assert.False(t, ok, "superseded chunk still visible")

	hits, err := snap.SearchLexical(ctx, "old rules amortization", 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "doc-1-c0", h.ChunkID)
	}
}

func TestStore_ReaderIsolation(t *testing.T) {
	store := NewStore(&fakeEmbedder{})
	ctx := context.Background()

	doc, chunks := testDoc("doc-1", "first generation content")
	_, err := store.Upsert(ctx, doc, chunks)
	require.NoError(t, err)

	// A reader binds to the current snapshot...
	snap, err := store.Snapshot()
	require.NoError(t, err)
	boundVersion := snap.Version()

	// ...and an upsert completing mid-request must not change its view.
	doc2, chunks2 := testDoc("doc-2", "second generation content")
	_, err = store.Upsert(ctx, doc2, chunks2)
	require.NoError(t, err)

	assert.Equal(t, boundVersion, snap.Version())
	assert.Equal(t, 1, snap.ChunkCount())

	fresh, err := store.Snapshot()
	require.NoError(t, err)
	assert.NotEqual(t, boundVersion, fresh.Version())
	assert.Equal(t, 2, fresh.ChunkCount())
}

func TestStore_EmbeddingFailureLeavesSnapshotUnchanged(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := NewStore(embedder)
	ctx := context.Background()

	doc, chunks := testDoc("doc-1", "stable content")
	version, err := store.Upsert(ctx, doc, chunks)
	require.NoError(t, err)

	embedder.embedErr = errors.New("provider down")
	doc2, chunks2 := testDoc("doc-2", "never committed")
	_, err = store.Upsert(ctx, doc2, chunks2)

	var embedErr *domain.EmbeddingError
	require.ErrorAs(t, err, &embedErr)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, version, snap.Version())
	_, ok := snap.Document("doc-2")
	assert.False(t, ok)
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	store := NewStore(&fakeEmbedder{})
	require.NoError(t, store.Close())

	_, err := store.Snapshot()
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	doc, chunks := testDoc("doc-1", "content")
	_, err = store.Upsert(context.Background(), doc, chunks)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestStore_VectorSearchRanksBySimilarity(t *testing.T) {
	store := NewStore(&fakeEmbedder{})
	ctx := context.Background()

	docA, chunksA := testDoc("doc-a", "minimum down payment for a home purchase in ontario")
	docB, chunksB := testDoc("doc-b", "fixed versus variable interest rate comparison")
	_, err := store.Upsert(ctx, docA, chunksA)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, docB, chunksB)
	require.NoError(t, err)

	snap, err := store.Snapshot()
	require.NoError(t, err)

	embedder := &fakeEmbedder{}
	query, err := embedder.Embed(ctx, "minimum down payment ontario")
	require.NoError(t, err)

	hits, err := snap.SearchVector(ctx, query, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-a-c0", hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestStore_LexicalSearchDeterministicOrder(t *testing.T) {
	store := NewStore(&fakeEmbedder{})
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		doc, chunks := testDoc(id, "identical mortgage content here")
		_, err := store.Upsert(ctx, doc, chunks)
		require.NoError(t, err)
	}

	snap, err := store.Snapshot()
	require.NoError(t, err)

	first, err := snap.SearchLexical(ctx, "mortgage content", 3)
	require.NoError(t, err)
	second, err := snap.SearchLexical(ctx, "mortgage content", 3)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
	}
}

func TestStore_SearchCapsResults(t *testing.T) {
	store := NewStore(&fakeEmbedder{})
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		doc, chunks := testDoc(id, "mortgage renewal terms "+id)
		_, err := store.Upsert(ctx, doc, chunks)
		require.NoError(t, err)
	}

	snap, err := store.Snapshot()
	require.NoError(t, err)

	hits, err := snap.SearchLexical(ctx, "mortgage renewal", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestStore_RestoreModelMismatch(t *testing.T) {
	store := NewStore(&fakeEmbedder{model: "embed-v2"})

	err := store.Restore("embed-v1", "snap-1", nil, nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingModelMismatch)
}
