package services

import (
	"context"
	"strings"
	"sync"

	auditmemory "github.com/mortar-ai/mortar/internal/adapters/driven/audit/memory"
	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
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

// fakeLLM returns scripted outputs or errors, counting calls.
type fakeLLM struct {
	mu      sync.Mutex
	outputs []string
	errs    []error
	calls   int
}

// Generate pops the next scripted error, else the next scripted output.
// The last script entry repeats once the script runs out.
func (f *fakeLLM) Generate(_ context.Context, _, _ string, _ driven.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++

	if len(f.errs) > 0 {
		idx := i
		if idx >= len(f.errs) {
			idx = len(f.errs) - 1
		}
		if err := f.errs[idx]; err != nil {
			return "", err
		}
	}
	if len(f.outputs) == 0 {
		return "", nil
	}
	idx := i
	if idx >= len(f.outputs) {
		idx = len(f.outputs) - 1
	}
	return f.outputs[idx], nil
}

func (f *fakeLLM) ModelName() string { return "fake-chat-1" }

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePrompts serves fixed templates.
type fakePrompts struct{}

func (fakePrompts) Load(name string) (string, error) {
	switch name {
	case driven.PromptAnswerSystem:
		return "Answer only from the provided context and cite sources like [S1].", nil
	case driven.PromptClarify:
		return "Could you share more detail, such as your province or price range?", nil
	}
	return "", domain.ErrNotFound
}

func (fakePrompts) Reload() {}

// fakeAudit wraps the in-memory audit log with an injectable error.
type fakeAudit struct {
	auditmemory.AuditLog
	err error
}

func (f *fakeAudit) Record(ctx context.Context, rec domain.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	return f.AuditLog.Record(ctx, rec)
}

func (f *fakeAudit) all() []domain.AuditRecord {
	return f.Records()
}

func (f *fakeAudit) last() domain.AuditRecord {
	records := f.Records()
	return records[len(records)-1]
}
