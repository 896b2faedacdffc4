// Package chunker splits normalised documents into overlapping token
// windows for retrieval.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

// DefaultMaxTokens is the default window size in tokens.
const DefaultMaxTokens = 200

// DefaultOverlapTokens is the default overlap between consecutive windows.
const DefaultOverlapTokens = 30

// Chunker splits document content into overlapping token windows.
// It assumes clean prose input; boilerplate stripping happens upstream in
// the corpus loader. Chunking is deterministic: identical (text, config)
// always yields identical chunk boundaries and chunk IDs, which lets
// re-ingestion detect "no content change, skip re-embedding".
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxTokens sets the window size in tokens.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlapTokens sets the overlap between consecutive windows.
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapTokens = n
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxTokens:     DefaultMaxTokens,
		overlapTokens: DefaultOverlapTokens,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ensure overlap doesn't exceed window size
	if c.overlapTokens >= c.maxTokens {
		c.overlapTokens = c.maxTokens / 4
	}

	return c
}

// token is a whitespace-delimited run within the raw text.
type token struct {
	start int
	end   int
}

// Chunk splits the document's raw text into ordered, overlapping chunks.
// Consecutive chunks overlap by exactly the configured overlap except at
// document boundaries. Returns domain.ErrMalformedInput for empty or
// non-text content.
func (c *Chunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	tokens, err := tokenize(doc.RawText)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}

	step := c.maxTokens - c.overlapTokens

	chunks := make([]domain.Chunk, 0, len(tokens)/step+1)
	ordinal := 0
	start := 0

	for start < len(tokens) {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		span := domain.CharSpan{
			Start: tokens[start].start,
			End:   tokens[end-1].end,
		}

		chunks = append(chunks, domain.Chunk{
			ID:         c.chunkID(doc.ID, ordinal, span),
			DocumentID: doc.ID,
			Ordinal:    ordinal,
			Text:       doc.RawText[span.Start:span.End],
			Span:       span,
			TokenCount: end - start,
		})
		ordinal++

		if end == len(tokens) {
			break
		}
		start += step
	}

	return chunks, nil
}

// chunkID derives a stable identifier from document, policy and boundary.
// Re-chunking with the same text and config reproduces the same IDs; any
// change to either regenerates them, retiring the old chunks.
func (c *Chunker) chunkID(docID string, ordinal int, span domain.CharSpan) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d|%d|%d", docID, c.maxTokens, c.overlapTokens, ordinal, span.Start, span.End)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// tokenize returns byte spans of whitespace-delimited tokens.
func tokenize(text string) ([]token, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", domain.ErrMalformedInput)
	}

	var tokens []token
	hasLetter := false
	inToken := false
	start := 0

	for i, r := range text {
		if unicode.IsSpace(r) {
			if inToken {
				tokens = append(tokens, token{start: start, end: i})
				inToken = false
			}
			continue
		}
		if !inToken {
			start = i
			inToken = true
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasLetter = true
		}
	}
	if inToken {
		tokens = append(tokens, token{start: start, end: len(text)})
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty content", domain.ErrMalformedInput)
	}
	if !hasLetter {
		return nil, fmt.Errorf("%w: no textual content", domain.ErrMalformedInput)
	}

	return tokens, nil
}
