package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

func retrievedChunk(docID string, ordinal int, text string) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{
			ID:         fmt.Sprintf("%s-c%d", docID, ordinal),
			DocumentID: docID,
			Ordinal:    ordinal,
			Text:       text,
		},
		Document: domain.Document{
			ID:            docID,
			SourceName:    "FSRA",
			Title:         "Down Payments in Ontario",
			URL:           "https://example.ca/down-payments",
			Jurisdiction:  "Ontario",
			PublishedDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		CombinedScore: 1.0 - float64(ordinal)*0.1,
	}
}

func TestAssembleTagsInRankOrder(t *testing.T) {
	assembler := NewAssembler(8000, 6)
	retrieved := []domain.RetrievedChunk{
		retrievedChunk("doc", 0, "The minimum down payment is 5 percent."),
		retrievedChunk("doc", 1, "Insurance applies below 20 percent down."),
		retrievedChunk("doc", 2, "Premiums are added to the mortgage principal."),
	}

	prompt := assembler.Assemble("system text", "What is the minimum down payment?", retrieved, nil)

	require.Len(t, prompt.Tagged, 3)
	assert.Equal(t, tags("S1", "S2", "S3"), prompt.ValidTags())
	assert.Equal(t, "doc-c0", prompt.Tagged[0].Chunk.Chunk.ID)
	assert.Zero(t, prompt.DroppedChunks)

	assert.Equal(t, "system text", prompt.System)
	assert.Contains(t, prompt.User, "[S1] The minimum down payment is 5 percent.")
	assert.Contains(t, prompt.User, "[S3] Premiums are added to the mortgage principal.")
	assert.Contains(t, prompt.User, "Source: Down Payments in Ontario | https://example.ca/down-payments | Ontario | 2024-01-01")
	assert.Contains(t, prompt.User, "User question:\nWhat is the minimum down payment?")
}

func TestAssembleDropsLowestRankedWholeChunks(t *testing.T) {
	long := strings.Repeat("mortgage guidance detail ", 20)
	retrieved := []domain.RetrievedChunk{
		retrievedChunk("doc", 0, long),
		retrievedChunk("doc", 1, long),
		retrievedChunk("doc", 2, long),
	}

	// Budget fits roughly one block.
	assembler := NewAssembler(700, 6)
	prompt := assembler.Assemble("system", "question", retrieved, nil)

	require.NotEmpty(t, prompt.Tagged)
	assert.Less(t, len(prompt.Tagged), 3)
	assert.Equal(t, 3-len(prompt.Tagged), prompt.DroppedChunks)

	// Included chunks are whole, never truncated mid-text.
	for _, tc := range prompt.Tagged {
		assert.Contains(t, prompt.User, strings.TrimSpace(tc.Chunk.Chunk.Text))
	}
	// The top-ranked chunk survives and keeps the first tag.
	assert.Equal(t, "doc-c0", prompt.Tagged[0].Chunk.Chunk.ID)
	assert.Equal(t, domain.CitationTag("S1"), prompt.Tagged[0].Tag)
}

func TestAssembleKeepsOversizedTopChunk(t *testing.T) {
	huge := strings.Repeat("clause ", 500)
	retrieved := []domain.RetrievedChunk{retrievedChunk("doc", 0, huge)}

	assembler := NewAssembler(100, 6)
	prompt := assembler.Assemble("system", "question", retrieved, nil)

	require.Len(t, prompt.Tagged, 1)
	assert.Zero(t, prompt.DroppedChunks)
	assert.Contains(t, prompt.User, strings.TrimSpace(huge))
}

func TestAssembleBoundsHistory(t *testing.T) {
	assembler := NewAssembler(8000, 2)
	retrieved := []domain.RetrievedChunk{retrievedChunk("doc", 0, "Chunk text.")}
	history := []domain.ConversationTurn{
		{Role: "user", Content: "turn one"},
		{Role: "assistant", Content: "turn two"},
		{Role: "user", Content: "turn three"},
		{Role: "assistant", Content: "turn four"},
	}

	prompt := assembler.Assemble("system", "question", retrieved, history)

	assert.NotContains(t, prompt.User, "turn one")
	assert.NotContains(t, prompt.User, "turn two")
	assert.Contains(t, prompt.User, "user: turn three")
	assert.Contains(t, prompt.User, "assistant: turn four")
}

func TestAssembleZeroHistoryTurnsOmitsHistory(t *testing.T) {
	assembler := NewAssembler(8000, 0)
	retrieved := []domain.RetrievedChunk{retrievedChunk("doc", 0, "Chunk text.")}
	history := []domain.ConversationTurn{{Role: "user", Content: "earlier question"}}

	prompt := assembler.Assemble("system", "question", retrieved, history)

	assert.NotContains(t, prompt.User, "earlier question")
	assert.NotContains(t, prompt.User, "Conversation so far:")
}

func TestAssembleFallbackSourceDescriptor(t *testing.T) {
	rc := domain.RetrievedChunk{
		Chunk:    domain.Chunk{ID: "c0", DocumentID: "doc", Text: "Some text."},
		Document: domain.Document{ID: "doc"},
	}

	assembler := NewAssembler(8000, 6)
	prompt := assembler.Assemble("system", "question", []domain.RetrievedChunk{rc}, nil)

	assert.Contains(t, prompt.User, "Source: Untitled Source | URL unavailable | N/A")
}

func TestAssembledPromptChars(t *testing.T) {
	prompt := AssembledPrompt{System: "abc", User: "defgh"}

	assert.Equal(t, 8, prompt.Chars())
}
