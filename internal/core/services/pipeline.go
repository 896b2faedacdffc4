package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/core/ports/driving"
	"github.com/mortar-ai/mortar/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.AnswerService = (*Pipeline)(nil)

// pipelineState is one step of the per-request state machine. Every request
// walks a linear path through these states; ERROR is reachable from any of
// them and every terminal state emits exactly one audit record.
type pipelineState int

const (
	stateValidatingInput pipelineState = iota
	stateRetrieving
	stateLowConfidence
	stateAssembling
	stateGenerating
	stateEnforcing
	stateResponding
	stateError
)

func (s pipelineState) String() string {
	switch s {
	case stateValidatingInput:
		return "VALIDATING_INPUT"
	case stateRetrieving:
		return "RETRIEVING"
	case stateLowConfidence:
		return "LOW_CONFIDENCE"
	case stateAssembling:
		return "ASSEMBLING"
	case stateGenerating:
		return "GENERATING"
	case stateEnforcing:
		return "ENFORCING"
	case stateResponding:
		return "RESPONDING"
	case stateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Fixed user-visible response texts. The safe fallback is a hard policy: on
// a grounding violation or provider failure the user sees this text, never
// the model's raw output.
const (
	fallbackText = "I can't answer confidently from my verified sources right now. " +
		"For guidance specific to your situation, please consult a licensed mortgage professional."

	degradedText = "The source index is temporarily unavailable, so I can't answer right now. " +
		"Please try again in a few minutes."
)

// Pipeline sequences validation, retrieval, prompt assembly, generation and
// grounding enforcement for one question at a time. Requests are independent
// and stateless apart from shared read access to the index.
type Pipeline struct {
	retriever *Retriever
	assembler *Assembler
	enforcer  *Enforcer
	llm       driven.LLMService
	prompts   driven.PromptStore
	audit     driven.AuditLog
	redactor  driven.Redactor
	settings  domain.PipelineSettings
	genOpts   driven.GenerateOptions
}

// NewPipeline creates the answer pipeline. audit may not be nil; redactor
// may be nil, in which case no redaction is applied.
func NewPipeline(
	retriever *Retriever,
	assembler *Assembler,
	enforcer *Enforcer,
	llm driven.LLMService,
	prompts driven.PromptStore,
	audit driven.AuditLog,
	redactor driven.Redactor,
	settings domain.PipelineSettings,
	genOpts driven.GenerateOptions,
) *Pipeline {
	if redactor == nil {
		redactor = driven.PassthroughRedactor{}
	}
	return &Pipeline{
		retriever: retriever,
		assembler: assembler,
		enforcer:  enforcer,
		llm:       llm,
		prompts:   prompts,
		audit:     audit,
		redactor:  redactor,
		settings:  settings,
		genOpts:   genOpts,
	}
}

// answerRequest carries one request's state across the machine.
type answerRequest struct {
	question string
	history  []domain.ConversationTurn

	retrieval domain.RetrievalResult
	prompt    AssembledPrompt
	rawOutput string
	retries   int

	answer domain.Answer
	record domain.AuditRecord
}

// Answer runs the state machine for one question. Every taxonomy failure is
// converted to one of the user-visible shapes; the only error returned to
// the caller is context cancellation, which is still logged as a truncated
// audit record.
func (p *Pipeline) Answer(ctx context.Context, question string, history []domain.ConversationTurn) (domain.Answer, error) {
	req := &answerRequest{
		question: p.redactor.Redact(question),
		history:  history,
		record: domain.AuditRecord{
			RequestID: "req_" + uuid.NewString(),
			Timestamp: time.Now().UTC(),
		},
	}
	req.record.QueryChars = len(req.question)
	req.answer.RequestID = req.record.RequestID

	logger.Section("Answer Pipeline")
	logger.Debug("Request %s: %d question chars, %d history turns",
		req.record.RequestID, len(req.question), len(history))

	state := stateValidatingInput
	for state != stateResponding {
		if err := ctx.Err(); err != nil {
			return p.abort(ctx, req, state, err)
		}

		logger.Debug("State: %s", state)
		switch state {
		case stateValidatingInput:
			state = p.validateInput(req)
		case stateRetrieving:
			state = p.retrieve(ctx, req)
		case stateLowConfidence:
			state = p.lowConfidence(req)
		case stateAssembling:
			state = p.assemble(req)
		case stateGenerating:
			state = p.generate(ctx, req)
		case stateEnforcing:
			state = p.enforce(req)
		case stateError:
			state = p.fail(req)
		default:
			// Unreachable unless a new state is added without a handler.
			state = p.fail(req)
		}
	}

	p.writeAudit(ctx, req)
	return req.answer, nil
}

// validateInput rejects over-length questions before any retrieval.
func (p *Pipeline) validateInput(req *answerRequest) pipelineState {
	if p.settings.MaxQuestionChars > 0 && len(req.question) > p.settings.MaxQuestionChars {
		logger.Info("Question over limit: %d > %d chars", len(req.question), p.settings.MaxQuestionChars)
		req.answer.Kind = domain.ResponseLimitExceeded
		req.answer.Text = fmt.Sprintf("Your question is too long. The limit is %d characters.", p.settings.MaxQuestionChars)
		req.record.ResponseKind = domain.ResponseLimitExceeded
		req.record.ErrorKind = "INPUT_LIMIT_EXCEEDED"
		return stateResponding
	}
	return stateRetrieving
}

// retrieve runs hybrid retrieval. An unreachable index or a model mismatch
// routes to ERROR; an empty result routes to LOW_CONFIDENCE.
func (p *Pipeline) retrieve(ctx context.Context, req *answerRequest) pipelineState {
	result, err := p.retriever.Retrieve(ctx, req.question, domain.RetrievalOptions{})
	if err != nil {
		logger.Warn("Retrieval failed: %v", err)
		switch {
		case errors.Is(err, domain.ErrIndexUnavailable):
			req.record.ErrorKind = "INDEX_UNAVAILABLE"
		case errors.Is(err, domain.ErrEmbeddingModelMismatch):
			req.record.ErrorKind = "EMBEDDING_MODEL_MISMATCH"
		default:
			var embErr *domain.EmbeddingError
			if errors.As(err, &embErr) {
				req.record.ErrorKind = "EMBEDDING_PROVIDER"
			} else {
				req.record.ErrorKind = "RETRIEVAL_FAILED"
			}
		}
		return stateError
	}

	req.retrieval = result
	req.record.SnapshotVersion = result.SnapshotVersion
	req.record.LowConfidence = result.LowConfidence
	req.record.Retrieved = scoreRecords(result.Chunks)
	req.answer.SnapshotVersion = result.SnapshotVersion

	if result.LowConfidence {
		return stateLowConfidence
	}
	return stateAssembling
}

// lowConfidence responds with a clarifying question, skipping generation
// entirely.
func (p *Pipeline) lowConfidence(req *answerRequest) pipelineState {
	clarify, err := p.prompts.Load(driven.PromptClarify)
	if err != nil {
		logger.Warn("Clarify prompt unavailable: %v", err)
		clarify = fallbackText
	}
	req.answer.Kind = domain.ResponseClarifying
	req.answer.Text = clarify
	req.record.ResponseKind = domain.ResponseClarifying
	req.record.OmissionReason = "LOW_CONFIDENCE_RETRIEVAL"
	return stateResponding
}

// assemble builds the bounded prompt and the citation-tag mapping.
func (p *Pipeline) assemble(req *answerRequest) pipelineState {
	system, err := p.prompts.Load(driven.PromptAnswerSystem)
	if err != nil {
		logger.Warn("System prompt unavailable: %v", err)
		req.record.ErrorKind = "PROMPT_UNAVAILABLE"
		return stateError
	}

	req.prompt = p.assembler.Assemble(system, req.question, req.retrieval.Chunks, req.history)
	req.record.PromptChars = req.prompt.Chars()
	req.record.DroppedChunks = req.prompt.DroppedChunks
	return stateGenerating
}

// generate calls the model with bounded timeout and retries. Retries are
// capped so a flapping provider cannot stretch latency unbounded; an auth
// failure is never retried.
func (p *Pipeline) generate(ctx context.Context, req *answerRequest) pipelineState {
	backoff := retry.WithMaxRetries(uint64(p.settings.GenerationRetries), retry.NewExponential(p.settings.RetryBackoff))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		callCtx := ctx
		if p.settings.GenerationTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.settings.GenerationTimeout)
			defer cancel()
		}

		output, err := p.llm.Generate(callCtx, req.prompt.System, req.prompt.User, p.genOpts)
		if err != nil {
			var genErr *domain.GenerationError
			if errors.As(err, &genErr) && genErr.Retryable() {
				logger.Warn("Generation attempt %d failed (%s), retrying", attempts, genErr.Kind)
				return retry.RetryableError(err)
			}
			return err
		}
		req.rawOutput = output
		return nil
	})
	req.retries = attempts - 1
	req.record.GenerationRetries = req.retries

	if err != nil {
		logger.Warn("Generation failed after %d retries: %v", req.retries, err)
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			req.record.ErrorKind = "GENERATION_" + strings.ToUpper(string(genErr.Kind))
		} else {
			req.record.ErrorKind = "GENERATION_FAILED"
		}
		req.record.OmissionReason = "GENERATION_FAILED"
		return stateError
	}

	if req.rawOutput == "" {
		logger.Warn("Generation returned empty completion")
		req.record.ErrorKind = "GENERATION_FAILED"
		req.record.OmissionReason = "EMPTY_COMPLETION"
		return stateError
	}

	req.record.RawModelOutput = p.redactor.Redact(req.rawOutput)
	return stateEnforcing
}

// enforce validates the raw answer against the per-request citation tags.
// A rejection is an expected outcome that routes straight to the safe
// fallback, not through ERROR.
func (p *Pipeline) enforce(req *answerRequest) pipelineState {
	verdict := p.enforcer.Enforce(req.rawOutput, req.prompt.ValidTags(), p.settings.CitationsRequired)
	req.record.Verdict = &verdict
	req.answer.Verdict = &verdict

	if !verdict.Accepted {
		logger.Info("Grounding rejected: %s", verdict.Violation)
		req.answer.Kind = domain.ResponseFallback
		req.answer.Text = fallbackText
		req.answer.Citations = nil
		req.record.ResponseKind = domain.ResponseFallback
		return stateResponding
	}

	req.answer.Kind = domain.ResponseGrounded
	req.answer.Text = req.rawOutput
	req.answer.Citations = usedCitations(req.prompt.Tagged, verdict)
	req.record.ResponseKind = domain.ResponseGrounded
	logger.Info("Answer grounded with %d citations", len(req.answer.Citations))
	return stateResponding
}

// fail converts an ERROR-state failure to its user-visible shape: degraded
// when the index is down, safe fallback for everything else.
func (p *Pipeline) fail(req *answerRequest) pipelineState {
	if req.record.ErrorKind == "INDEX_UNAVAILABLE" {
		req.answer.Kind = domain.ResponseDegraded
		req.answer.Text = degradedText
	} else {
		req.answer.Kind = domain.ResponseFallback
		req.answer.Text = fallbackText
	}
	req.answer.Citations = nil
	req.record.ResponseKind = req.answer.Kind
	return stateResponding
}

// abort handles context cancellation: whatever stages completed are still
// logged, marked truncated, rather than silently dropped.
func (p *Pipeline) abort(ctx context.Context, req *answerRequest, state pipelineState, cause error) (domain.Answer, error) {
	logger.Warn("Request %s cancelled in state %s", req.record.RequestID, state)
	req.record.Truncated = true
	req.record.ErrorKind = "CANCELLED"
	if req.record.ResponseKind == "" {
		req.record.ResponseKind = domain.ResponseDegraded
	}
	p.writeAudit(ctx, req)
	return domain.Answer{}, fmt.Errorf("answer pipeline cancelled in %s: %w", state, cause)
}

// writeAudit emits the request's single audit record. Audit failures are
// logged but never fail the request.
func (p *Pipeline) writeAudit(ctx context.Context, req *answerRequest) {
	// The record must outlive the request's context.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.audit.Record(auditCtx, req.record); err != nil {
		logger.Warn("Audit write failed for %s: %v", req.record.RequestID, err)
	}
}

// scoreRecords projects retrieval hits into the audit form.
func scoreRecords(chunks []domain.RetrievedChunk) []domain.ScoreRecord {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]domain.ScoreRecord, len(chunks))
	for i, rc := range chunks {
		records[i] = domain.ScoreRecord{
			ChunkID:       rc.Chunk.ID,
			DenseScore:    rc.DenseScore,
			LexicalScore:  rc.LexicalScore,
			CombinedScore: rc.CombinedScore,
		}
	}
	return records
}

// usedCitations builds the citation payload for the tags the answer
// actually used, in first-use order. Retrieved-but-uncited sources are
// excluded.
func usedCitations(tagged []TaggedChunk, verdict domain.GroundingVerdict) []domain.Citation {
	byTag := make(map[domain.CitationTag]domain.RetrievedChunk, len(tagged))
	for _, tc := range tagged {
		byTag[tc.Tag] = tc.Chunk
	}

	citations := make([]domain.Citation, 0, len(verdict.UsedCitations))
	for _, tag := range verdict.UsedCitations {
		rc, ok := byTag[tag]
		if !ok {
			continue
		}
		citations = append(citations, domain.Citation{
			Tag:           tag,
			Title:         rc.Document.Title,
			SourceName:    rc.Document.SourceName,
			URL:           rc.Document.URL,
			Jurisdiction:  rc.Document.Jurisdiction,
			PublishedDate: rc.Document.PublishedDate,
		})
	}
	return citations
}
