// Package memory provides an in-memory index store built on immutable
// snapshots. It is the query-serving core of the durable SQLite store and
// is used directly in tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

// BM25 parameters. Standard values; not worth configuring.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Store is an in-memory IndexStore. Readers always see one immutable
// snapshot; an upsert builds the next snapshot aside and publishes it with
// a single atomic pointer swap, so a partially embedded document is never
// visible and the read path takes no lock.
type Store struct {
	embedder driven.EmbeddingService

	// writeMu serialises upserts (single writer). Readers never take it.
	writeMu sync.Mutex
	snap    atomic.Pointer[snapshot]
	closed  atomic.Bool
}

// snapshot is one immutable generation of the index.
type snapshot struct {
	version        string
	embeddingModel string

	docs      map[string]domain.Document
	chunks    map[string]domain.Chunk
	docChunks map[string][]string

	// Lexical index: term -> chunkID -> term frequency.
	postings   map[string]map[string]int
	chunkTerms map[string]map[string]int
	totalLen   int
}

// NewStore creates an empty store bound to the given embedding service.
// The embedder's model identifier is recorded in every snapshot.
func NewStore(embedder driven.EmbeddingService) *Store {
	s := &Store{embedder: embedder}
	s.snap.Store(emptySnapshot())
	return s
}

func emptySnapshot() *snapshot {
	return &snapshot{
		version:    uuid.NewString(),
		docs:       make(map[string]domain.Document),
		chunks:     make(map[string]domain.Chunk),
		docChunks:  make(map[string][]string),
		postings:   make(map[string]map[string]int),
		chunkTerms: make(map[string]map[string]int),
	}
}

// Upsert embeds the chunks and atomically publishes a snapshot in which
// they replace every chunk previously ingested for the same document.
func (s *Store) Upsert(ctx context.Context, doc domain.Document, chunks []domain.Chunk) (string, error) {
	if s.closed.Load() {
		return "", domain.ErrIndexUnavailable
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return "", &domain.EmbeddingError{Model: s.embedder.ModelName(), Err: err}
		}
		if len(vectors) != len(chunks) {
			return "", &domain.EmbeddingError{
				Model: s.embedder.ModelName(),
				Err:   fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks)),
			}
		}
	}

	embedded := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = vectors[i]
		embedded[i] = c
	}

	return s.Apply(doc, embedded, uuid.NewString())
}

// Apply publishes a new snapshot containing the document and its already
// embedded chunks under the given version token. It exists so that durable
// adapters can persist first and publish second; callers other than those
// adapters should use Upsert.
func (s *Store) Apply(doc domain.Document, chunks []domain.Chunk, version string) (string, error) {
	if s.closed.Load() {
		return "", domain.ErrIndexUnavailable
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.snap.Load().clone(version)
	if s.embedder != nil {
		next.embeddingModel = s.embedder.ModelName()
	}
	next.retire(doc.ID)
	next.insert(doc, chunks)
	s.snap.Store(next)

	logger.Debug("Index: doc %s committed with %d chunks, snapshot %s", doc.ID, len(chunks), version)
	return version, nil
}

// Restore replaces the store contents wholesale, typically from durable
// storage at startup. Chunks must carry embeddings. Fails with
// domain.ErrEmbeddingModelMismatch when the persisted model identifier
// differs from the bound embedder's.
func (s *Store) Restore(model, version string, docs []domain.Document, chunksByDoc map[string][]domain.Chunk) error {
	if s.closed.Load() {
		return domain.ErrIndexUnavailable
	}
	if model != "" && s.embedder != nil && model != s.embedder.ModelName() {
		return fmt.Errorf("%w: snapshot built with %q, embedder is %q",
			domain.ErrEmbeddingModelMismatch, model, s.embedder.ModelName())
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := emptySnapshot()
	next.version = version
	next.embeddingModel = model
	for _, doc := range docs {
		next.insert(doc, chunksByDoc[doc.ID])
	}
	s.snap.Store(next)
	return nil
}

// Snapshot returns the current generation. The returned value stays
// queryable for the caller's whole request even if upserts land meanwhile.
func (s *Store) Snapshot() (driven.IndexSnapshot, error) {
	if s.closed.Load() {
		return nil, domain.ErrIndexUnavailable
	}
	return &Snapshot{snap: s.snap.Load()}, nil
}

// Close marks the store unavailable.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// clone makes a copy-on-write duplicate under a new version.
// Outer maps are copied; inner structures are copied lazily by retire and
// insert as they are touched.
func (p *snapshot) clone(version string) *snapshot {
	next := &snapshot{
		version:        version,
		embeddingModel: p.embeddingModel,
		docs:           make(map[string]domain.Document, len(p.docs)),
		chunks:         make(map[string]domain.Chunk, len(p.chunks)),
		docChunks:      make(map[string][]string, len(p.docChunks)),
		postings:       make(map[string]map[string]int, len(p.postings)),
		chunkTerms:     p.chunkTerms, // replaced below
		totalLen:       p.totalLen,
	}
	for k, v := range p.docs {
		next.docs[k] = v
	}
	for k, v := range p.chunks {
		next.chunks[k] = v
	}
	for k, v := range p.docChunks {
		next.docChunks[k] = v
	}
	for term, post := range p.postings {
		next.postings[term] = post
	}
	terms := make(map[string]map[string]int, len(p.chunkTerms))
	for k, v := range p.chunkTerms {
		terms[k] = v
	}
	next.chunkTerms = terms
	return next
}

// retire removes a superseded document and all of its chunks.
func (p *snapshot) retire(docID string) {
	ids, ok := p.docChunks[docID]
	if !ok {
		return
	}
	for _, chunkID := range ids {
		for term := range p.chunkTerms[chunkID] {
			post := copyPosting(p.postings[term])
			delete(post, chunkID)
			if len(post) == 0 {
				delete(p.postings, term)
			} else {
				p.postings[term] = post
			}
		}
		p.totalLen -= p.chunks[chunkID].TokenCount
		delete(p.chunks, chunkID)
		delete(p.chunkTerms, chunkID)
	}
	delete(p.docChunks, docID)
	delete(p.docs, docID)
}

// insert adds a document and its embedded chunks.
func (p *snapshot) insert(doc domain.Document, chunks []domain.Chunk) {
	p.docs[doc.ID] = doc
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c.Embedding = normalise(c.Embedding)
		ids = append(ids, c.ID)
		p.chunks[c.ID] = c
		freq := termFrequencies(c.Text)
		p.chunkTerms[c.ID] = freq
		p.totalLen += c.TokenCount
		for term, tf := range freq {
			post := copyPosting(p.postings[term])
			post[c.ID] = tf
			p.postings[term] = post
		}
	}
	p.docChunks[doc.ID] = ids
}

func copyPosting(post map[string]int) map[string]int {
	out := make(map[string]int, len(post)+1)
	for k, v := range post {
		out[k] = v
	}
	return out
}

// Snapshot is the queryable view over one immutable generation.
type Snapshot struct {
	snap *snapshot
}

var _ driven.IndexSnapshot = (*Snapshot)(nil)

// Version returns the opaque version token.
func (v *Snapshot) Version() string { return v.snap.version }

// EmbeddingModel returns the model identifier the vectors were built with.
func (v *Snapshot) EmbeddingModel() string { return v.snap.embeddingModel }

// ChunkCount returns the number of live chunks.
func (v *Snapshot) ChunkCount() int { return len(v.snap.chunks) }

// Chunk retrieves a chunk by ID.
func (v *Snapshot) Chunk(id string) (domain.Chunk, bool) {
	c, ok := v.snap.chunks[id]
	return c, ok
}

// Document retrieves a document by ID.
func (v *Snapshot) Document(id string) (domain.Document, bool) {
	d, ok := v.snap.docs[id]
	return d, ok
}

// SearchVector ranks chunks by cosine similarity to the query embedding.
// Ties break by chunk ID so reruns with identical inputs order identically.
func (v *Snapshot) SearchVector(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	q := normalise(query)
	hits := make([]driven.VectorHit, 0, len(v.snap.chunks))
	for id, c := range v.snap.chunks {
		if len(c.Embedding) != len(q) {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: id, Score: dot(q, c.Embedding)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// SearchLexical ranks chunks by BM25 over chunk text.
func (v *Snapshot) SearchLexical(ctx context.Context, query string, k int) ([]driven.LexicalHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	n := len(v.snap.chunks)
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(v.snap.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	for term := range termFrequencies(query) {
		post, ok := v.snap.postings[term]
		if !ok {
			continue
		}
		df := float64(len(post))
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
		for chunkID, tf := range post {
			length := float64(v.snap.chunks[chunkID].TokenCount)
			tfPart := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*length/avgLen))
			scores[chunkID] += idf * tfPart
		}
	}

	hits := make([]driven.LexicalHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, driven.LexicalHit{ChunkID: id, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// termFrequencies lowercases and splits text on non-alphanumeric runes.
func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			freq[b.String()]++
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return freq
}

// normalise returns a unit-length copy of the vector.
func normalise(vec []float32) []float32 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
