package services

import (
	"strings"
	"unicode"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

// Enforcer validates a raw model answer against the per-request citation
// tags. It is a pure validator: it never calls the model and never touches
// retrieval state.
type Enforcer struct{}

// NewEnforcer creates a grounding enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{}
}

// Enforce scans the answer for citation markers and produces a verdict.
// Rules, in order:
//  1. A used citation outside the valid set rejects with UNKNOWN_CITATION.
//  2. Citations required, the answer makes declarative claims, and no
//     citation was used rejects with MISSING_CITATION.
//  3. Otherwise the answer is accepted.
func (e *Enforcer) Enforce(answer string, validTags []domain.CitationTag, citationsRequired bool) domain.GroundingVerdict {
	used := ScanCitations(answer)

	valid := make(map[domain.CitationTag]bool, len(validTags))
	for _, tag := range validTags {
		valid[tag] = true
	}

	for _, tag := range used {
		if !valid[tag] {
			return domain.GroundingVerdict{
				Accepted:      false,
				UsedCitations: used,
				Violation:     domain.ViolationUnknownCitation,
			}
		}
	}

	if citationsRequired && len(used) == 0 && containsDeclarativeClaim(answer) {
		return domain.GroundingVerdict{
			Accepted:  false,
			Violation: domain.ViolationMissingCitation,
		}
	}

	return domain.GroundingVerdict{
		Accepted:      true,
		UsedCitations: used,
	}
}

// ScanCitations extracts citation tags from the answer in first-use order,
// deduplicated. A tag is exactly the bracket form "[S<digits>]"; anything
// else inside brackets is ignored. The scan is a single tokenizing pass so
// near-miss forms ("[S1", "[Sx]", "[ S1 ]") never count as citations.
func ScanCitations(answer string) []domain.CitationTag {
	var ordered []domain.CitationTag
	seen := make(map[domain.CitationTag]bool)

	runes := []rune(answer)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '[' {
			continue
		}
		j := i + 1
		if j >= len(runes) || runes[j] != 'S' {
			continue
		}
		j++
		start := j
		for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
			j++
		}
		if j == start || j >= len(runes) || runes[j] != ']' {
			continue
		}

		tag := domain.CitationTag(string(runes[i+1 : j]))
		if !seen[tag] {
			seen[tag] = true
			ordered = append(ordered, tag)
		}
		i = j
	}

	return ordered
}

// hedgePrefixes mark sentences that defer rather than assert. A sentence
// opening with one of these is not counted as a declarative claim.
var hedgePrefixes = []string{
	"i don't know",
	"i do not know",
	"i'm not sure",
	"i am not sure",
	"i can't answer",
	"i cannot answer",
	"it depends",
	"could you",
	"can you",
	"please provide",
	"please clarify",
	"to clarify",
}

// containsDeclarativeClaim reports whether the answer asserts anything.
//
// The heuristic: split into sentences; a sentence is a declarative claim if
// it is not a question, has at least three words, and does not open with a
// hedge phrase. An answer of pure questions or hedges ("I don't know.") may
// go uncited without violating grounding.
func containsDeclarativeClaim(answer string) bool {
	for _, sentence := range splitSentences(answer) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || strings.HasSuffix(sentence, "?") {
			continue
		}
		if len(strings.Fields(sentence)) < 3 {
			continue
		}
		if hasHedgePrefix(sentence) {
			continue
		}
		return true
	}
	return false
}

func hasHedgePrefix(sentence string) bool {
	lower := strings.ToLower(sentence)
	lower = strings.TrimLeftFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, prefix := range hedgePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// splitSentences splits text on sentence terminators and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
