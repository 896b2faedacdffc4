package cli

import (
	"context"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

// Fakes standing in for the wired services so commands can be executed
// without a provider or an index on disk.

type fakeAnswerService struct {
	answer domain.Answer
	err    error
}

func (f *fakeAnswerService) Answer(_ context.Context, _ string, _ []domain.ConversationTurn) (domain.Answer, error) {
	return f.answer, f.err
}

type fakeIngestService struct {
	report domain.IngestReport
	err    error
	docs   []domain.Document
}

func (f *fakeIngestService) Ingest(_ context.Context, docs []domain.Document) (domain.IngestReport, error) {
	f.docs = docs
	return f.report, f.err
}

type fakeHealthService struct {
	health domain.Health
}

func (f *fakeHealthService) RetrievalHealth(_ context.Context) domain.Health {
	return f.health
}

// setupTestServices installs fakes for every wired service and returns a
// cleanup that restores the previous values.
func setupTestServices(answer *fakeAnswerService, ingest *fakeIngestService, health *fakeHealthService) func() {
	oldAnswer, oldIngest, oldHealth := answerService, ingestService, healthService
	if answer == nil {
		answer = &fakeAnswerService{answer: domain.Answer{Kind: domain.ResponseGrounded, Text: "ok"}}
	}
	answerService = answer
	if ingest != nil {
		ingestService = ingest
	} else {
		ingestService = &fakeIngestService{}
	}
	if health != nil {
		healthService = health
	} else {
		healthService = &fakeHealthService{health: domain.Health{Status: domain.HealthOK}}
	}
	return func() {
		answerService, ingestService, healthService = oldAnswer, oldIngest, oldHealth
	}
}
