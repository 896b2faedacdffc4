package services

import (
	"fmt"
	"strings"

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/logger"
)

// defaultContextBudget caps the characters of retrieved context in a prompt.
const defaultContextBudget = 8000

// TaggedChunk pairs a retrieved chunk with its per-request citation tag.
type TaggedChunk struct {
	Tag   domain.CitationTag
	Chunk domain.RetrievedChunk
}

// AssembledPrompt is the bounded prompt handed to the model, together with
// the citation-tag mapping the grounding enforcer validates against.
type AssembledPrompt struct {
	// System is the fixed instruction set.
	System string

	// User is the context block, conversation history and question.
	User string

	// Tagged lists the included chunks in rank order; Tagged[i] carries
	// tag "S{i+1}".
	Tagged []TaggedChunk

	// DroppedChunks counts retrieved chunks excluded by the context
	// budget, for the audit record.
	DroppedChunks int
}

// Chars returns the total prompt size in characters.
func (p AssembledPrompt) Chars() int {
	return len(p.System) + len(p.User)
}

// ValidTags returns the set of citation tags a grounded answer may use.
func (p AssembledPrompt) ValidTags() []domain.CitationTag {
	tags := make([]domain.CitationTag, len(p.Tagged))
	for i, tc := range p.Tagged {
		tags[i] = tc.Tag
	}
	return tags
}

// Assembler builds model prompts from retrieval results under a character
// budget.
type Assembler struct {
	contextBudget   int
	maxHistoryTurns int
}

// NewAssembler creates an assembler. contextBudget bounds the retrieved
// context in characters; maxHistoryTurns bounds included conversation turns.
func NewAssembler(contextBudget, maxHistoryTurns int) *Assembler {
	if contextBudget <= 0 {
		contextBudget = defaultContextBudget
	}
	if maxHistoryTurns < 0 {
		maxHistoryTurns = 0
	}
	return &Assembler{
		contextBudget:   contextBudget,
		maxHistoryTurns: maxHistoryTurns,
	}
}

// Assemble tags the retrieved chunks in rank order and builds the user
// prompt. When the concatenated context would exceed the budget, the
// lowest-ranked chunks are dropped whole; a chunk is never truncated
// mid-text. The top-ranked chunk is always included, even if oversized, so
// a non-empty retrieval never assembles into an ungrounded prompt.
func (a *Assembler) Assemble(
	system string,
	question string,
	retrieved []domain.RetrievedChunk,
	history []domain.ConversationTurn,
) AssembledPrompt {
	logger.Section("Prompt Assembly")

	var tagged []TaggedChunk
	var blocks []string
	used := 0

	for i, rc := range retrieved {
		tag := domain.CitationTag(fmt.Sprintf("S%d", len(tagged)+1))
		block := sourceBlock(tag, rc)
		if used+len(block) > a.contextBudget && len(tagged) > 0 {
			// Budget exhausted. Everything below this rank is dropped too.
			dropped := len(retrieved) - i
			logger.Debug("Context budget %d reached, dropping %d lowest-ranked chunks", a.contextBudget, dropped)
			return a.finish(system, question, tagged, blocks, history, dropped)
		}
		tagged = append(tagged, TaggedChunk{Tag: tag, Chunk: rc})
		blocks = append(blocks, block)
		used += len(block)
	}

	return a.finish(system, question, tagged, blocks, history, 0)
}

func (a *Assembler) finish(
	system, question string,
	tagged []TaggedChunk,
	blocks []string,
	history []domain.ConversationTurn,
	dropped int,
) AssembledPrompt {
	var b strings.Builder

	b.WriteString("Context:\n")
	b.WriteString(strings.Join(blocks, "\n"))
	b.WriteString("\n\n")

	if turns := boundHistory(history, a.maxHistoryTurns); len(turns) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range turns {
			b.WriteString(turn.Role)
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("User question:\n")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString("Answer using only the provided context excerpts and follow the required sections.")

	prompt := AssembledPrompt{
		System:        system,
		User:          b.String(),
		Tagged:        tagged,
		DroppedChunks: dropped,
	}
	logger.Debug("Assembled prompt: %d chars, %d tagged chunks, %d dropped", prompt.Chars(), len(tagged), dropped)
	return prompt
}

// sourceBlock renders one chunk with its tag and a compact source
// descriptor.
func sourceBlock(tag domain.CitationTag, rc domain.RetrievedChunk) string {
	title := rc.Document.Title
	if title == "" {
		title = "Untitled Source"
	}
	url := rc.Document.URL
	if url == "" {
		url = "URL unavailable"
	}
	jurisdiction := rc.Document.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = "N/A"
	}

	descriptor := fmt.Sprintf("Source: %s | %s | %s", title, url, jurisdiction)
	if !rc.Document.PublishedDate.IsZero() {
		descriptor += " | " + rc.Document.PublishedDate.Format("2006-01-02")
	}

	return fmt.Sprintf("[%s] %s\n%s\n", tag, strings.TrimSpace(rc.Chunk.Text), descriptor)
}

// boundHistory keeps only the most recent turns.
func boundHistory(history []domain.ConversationTurn, maxTurns int) []domain.ConversationTurn {
	if maxTurns <= 0 || len(history) <= maxTurns {
		if maxTurns <= 0 {
			return nil
		}
		return history
	}
	return history[len(history)-maxTurns:]
}
