// Package cli provides the command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	auditsqlite "github.com/mortar-ai/mortar/internal/adapters/driven/audit/sqlite"
	configfile "github.com/mortar-ai/mortar/internal/adapters/driven/config/file"
	openaiembed "github.com/mortar-ai/mortar/internal/adapters/driven/embedding/openai"
	indexsqlite "github.com/mortar-ai/mortar/internal/adapters/driven/index/sqlite"
	openaillm "github.com/mortar-ai/mortar/internal/adapters/driven/llm/openai"
	promptfile "github.com/mortar-ai/mortar/internal/adapters/driven/prompts/file"
	"github.com/mortar-ai/mortar/internal/chunker"
	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/core/ports/driving"
	"github.com/mortar-ai/mortar/internal/core/services"
	"github.com/mortar-ai/mortar/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Persistent flags.
var (
	verboseFlag bool
	configFlag  string
	dataDirFlag string
)

// Services wired by initServices and shared across commands.
var (
	cfg           configfile.Config
	answerService driving.AnswerService
	ingestService driving.IngestService
	healthService driving.HealthService

	// closers releases adapter resources after the command finishes.
	closers []io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "mortar",
	Short: "Grounded mortgage question answering from a curated corpus",
	Long: `Mortar answers natural-language mortgage questions by retrieving
passages from a curated document corpus and constraining a language model to
answer only from those passages, with verifiable citations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verboseFlag)
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initServices()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		closeServices()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file path (default ~/.mortar/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.mortar/data)")
}

// initServices loads configuration and wires the pipeline. It is called once
// per command invocation. Services that are already set (for example by
// tests) are left alone.
func initServices() error {
	if answerService != nil {
		return nil
	}

	var err error
	cfg, err = configfile.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}

	embedder, err := openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            apiKey,
		Model:             cfg.Embedding.Model,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}
	closers = append(closers, embedder)

	llm, err := openaillm.NewLLMService(openaillm.Config{
		APIKey:  apiKey,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("creating llm service: %w", err)
	}
	closers = append(closers, llm)

	indexStore, err := indexsqlite.NewStore(cfg.DataDir, embedder)
	if err != nil {
		return fmt.Errorf("opening index store: %w", err)
	}
	closers = append(closers, indexStore)

	auditLog, err := auditsqlite.NewAuditLog(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	closers = append(closers, auditLog)

	prompts, err := promptfile.NewPromptStore(cfg.Prompt.TemplateDir)
	if err != nil {
		return fmt.Errorf("creating prompt store: %w", err)
	}
	if err := prompts.Watch(); err != nil {
		logger.Warn("Prompt hot reload unavailable: %v", err)
	} else {
		closers = append(closers, prompts)
	}

	settings := domain.PipelineSettings{
		MaxQuestionChars:  cfg.Limits.MaxQuestionChars,
		CitationsRequired: cfg.Grounding.CitationsRequired,
		MaxHistoryTurns:   cfg.Limits.MaxHistoryTurns,
		GenerationRetries: cfg.Generation.MaxRetries,
		RetryBackoff:      cfg.Generation.RetryBackoff(),
		GenerationTimeout: cfg.Generation.Timeout(),
	}

	retriever := services.NewRetriever(indexStore, embedder, domain.RetrievalOptions{
		TopK:     cfg.Retrieval.TopK,
		Alpha:    cfg.Retrieval.Alpha,
		MinScore: cfg.Retrieval.MinScore,
	})
	assembler := services.NewAssembler(cfg.Prompt.ContextBudget, cfg.Limits.MaxHistoryTurns)

	answerService = services.NewPipeline(
		retriever,
		assembler,
		services.NewEnforcer(),
		llm,
		prompts,
		auditLog,
		driven.PassthroughRedactor{},
		settings,
		driven.GenerateOptions{
			MaxTokens:   cfg.Generation.MaxOutputTokens,
			Temperature: cfg.Generation.Temperature,
		},
	)

	ingestChunker := chunker.New(
		chunker.WithMaxTokens(cfg.Chunking.MaxTokens),
		chunker.WithOverlapTokens(cfg.Chunking.OverlapTokens),
	)
	ingestService = services.NewIngestor(ingestChunker, indexStore)
	healthService = services.NewHealthChecker(indexStore)

	return nil
}

// closeServices releases adapter resources in reverse wiring order.
func closeServices() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("Close failed: %v", err)
		}
	}
	closers = nil
}
