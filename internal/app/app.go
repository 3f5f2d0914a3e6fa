package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-kb/internal/config"
	"github.com/markdave123-py/contexta-kb/internal/core"
	db "github.com/markdave123-py/contexta-kb/internal/core/database"
	"github.com/markdave123-py/contexta-kb/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-kb/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-kb/internal/core/object-client"
	"github.com/markdave123-py/contexta-kb/internal/core/ocr"
	"github.com/markdave123-py/contexta-kb/internal/core/pdfengine"
	"github.com/markdave123-py/contexta-kb/internal/core/retrieval"
	"github.com/markdave123-py/contexta-kb/internal/core/vectorindex"
	"github.com/markdave123-py/contexta-kb/internal/services"
)

type App struct {
	Documents core.DocumentStore
	Segments  core.SegmentStore
	Objects   core.ObjectClient
	Ingestor  *ingestion_engine.DocumentIngestor
	Pipeline  *ingestion_engine.Pipeline
	Generator *llm.Chain
	DocSvc    *services.DocumentService
	ChatSvc   *services.ChatService
	Server    *Server

	closers []func() error
	logger  *slog.Logger
}

// NewApp wires stores, adapters and services from cfg. Background workers
// run until ctx ends.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openStores(appCtx, cfg); err != nil {
		return nil, err
	}

	if cfg.BucketName != "" {
		objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Objects = objClient
		logger.Info("App: object storage ready", "bucket", cfg.BucketName)
	}

	embedders, err := embedderFactory(cfg)
	if err != nil {
		return nil, err
	}

	ingCfg := IngestConfig(cfg)
	indexer, err := ingestion_engine.NewIndexer(a.Segments, embedders, ingCfg.Index, logger)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the indexer: %w", err)
	}
	a.Ingestor = ingestion_engine.NewDocumentIngestor(a.Documents, indexer, ingCfg, logger)

	extractor := ingestion_engine.NewExtractor(ocr.NewTesseract(cfg.Pipeline.Workers), pdfengine.Engine{}, ingCfg.Extractor, logger)

	var opts []ingestion_engine.PipelineOption
	if a.Objects != nil {
		opts = append(opts, ingestion_engine.WithObjectStorage(a.Objects, cfg.BucketName))
	}
	if cfg.Pipeline.BackgroundIndexing {
		opts = append(opts, ingestion_engine.WithBackgroundIndexing())
		a.Ingestor.Start(ctx, max(cfg.Pipeline.Workers, 1))
	}
	a.Pipeline = ingestion_engine.NewPipeline(a.Documents, a.Segments, extractor, a.Ingestor, ingCfg, logger, opts...)

	a.Generator, err = a.generators(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	chain := retrieval.NewChain(logger,
		retrieval.NewSemanticStrategy(a.Segments, embedders, retrieval.SemanticOptions{
			Threshold:    cfg.Pipeline.SimilarityThreshold,
			Limit:        cfg.Pipeline.ResultLimit,
			EmbedTimeout: cfg.Pipeline.EmbedTimeout,
		}, logger),
		retrieval.NewKeywordStrategy(nil),
	)

	var generator core.LLMProvider
	if len(a.Generator.Providers()) > 0 {
		generator = a.Generator
	}

	a.DocSvc = services.NewDocumentService(a.Pipeline, a.Documents, logger)
	a.ChatSvc = services.NewChatService(a.Documents, chain, generator, InstructionPolicy(cfg), cfg.Pipeline.MaxContextTokens, logger)
	a.Server = NewServer(cfg, a.DocSvc, a.ChatSvc, logger)

	logger.Info("App: ready",
		"backend", cfg.VectorBackend,
		"embed_provider", cfg.EmbedProvider,
		"generators", a.Generator.Providers(),
		"background_indexing", cfg.Pipeline.BackgroundIndexing,
	)
	ok = true
	return a, nil
}

// openStores picks the document and segment stores for VECTOR_BACKEND.
func (a *App) openStores(ctx context.Context, cfg *config.Config) error {
	switch cfg.VectorBackend {
	case "postgres":
		dbClient, err := db.NewDatabaseClient(ctx, cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, dbClient.Close)
		a.Documents, a.Segments = dbClient, dbClient
		a.logger.Info("App: database initialized and ready")
	case "chromem":
		docs := db.NewMemoryClient(cfg.EmbedDim)
		segments, err := vectorindex.NewChromemStore(cfg.ChromemPath, cfg.EmbedDim, a.logger)
		if err != nil {
			return err
		}
		a.Documents, a.Segments = docs, segments
	case "memory":
		m := db.NewMemoryClient(cfg.EmbedDim)
		a.Documents, a.Segments = m, m
	default:
		return &core.ConfigurationError{Setting: "VECTOR_BACKEND", Err: fmt.Errorf("unknown backend %q", cfg.VectorBackend)}
	}
	return nil
}

func embedderFactory(cfg *config.Config) (core.EmbeddingProviderFactory, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		return llm.GeminiEmbedderFactory{Model: cfg.EmbedModel, Dim: cfg.EmbedDim}, nil
	case "openai":
		return llm.OpenAIEmbedderFactory{BaseURL: cfg.OpenAIBaseURL, Model: cfg.EmbedModel, Dim: cfg.EmbedDim}, nil
	default:
		return nil, &core.ConfigurationError{Setting: "EMBED_PROVIDER", Err: fmt.Errorf("unknown provider %q", cfg.EmbedProvider)}
	}
}

// generators builds the answer chain in LLM_PROVIDERS order, skipping
// providers that are not configured.
func (a *App) generators(ctx context.Context, cfg *config.Config) (*llm.Chain, error) {
	var providers []core.LLMProvider
	for _, name := range cfg.LLMProviders {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gemini":
			if cfg.AIAPIKey == "" {
				a.logger.Warn("App: gemini generator skipped, GEMINI_API_KEY not set")
				continue
			}
			g, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
			if err != nil {
				return nil, fmt.Errorf("couldn't initialize the gemini generator: %w", err)
			}
			a.closers = append(a.closers, g.Close)
			providers = append(providers, g)
		case "ollama":
			if cfg.OllamaURL == "" {
				a.logger.Warn("App: ollama generator skipped, OLLAMA_URL not set")
				continue
			}
			providers = append(providers, llm.NewOllamaLLM(cfg.OllamaURL, cfg.OllamaModel, 2*time.Minute))
		case "":
		default:
			return nil, &core.ConfigurationError{Setting: "LLM_PROVIDERS", Err: fmt.Errorf("unknown provider %q", name)}
		}
	}
	return llm.NewChain(a.logger, providers...), nil
}

// IngestConfig maps the pipeline settings onto the ingestion engine.
func IngestConfig(cfg *config.Config) ingestion_engine.IngestConfig {
	p := cfg.Pipeline
	c := ingestion_engine.DefaultIngestConfig()

	c.MaxFileSizeBytes = p.MaxFileSizeBytes
	c.Extractor.MaxPDFPages = p.MaxPDFPages
	c.Extractor.MaxOCRPages = p.MaxOCRPages
	c.Index.MaxChunkSize = p.MaxChunkSize
	c.Index.ChunkOverlap = p.ChunkOverlap
	c.Index.BatchSize = p.EmbedBatchSize
	c.Index.FlushSize = p.FlushSize
	c.Index.EmbedTimeout = p.EmbedTimeout
	c.Index.RequestsPerSecond = p.EmbedRPS
	c.Index.Dimensions = cfg.EmbedDim
	return c
}

// InstructionPolicy uses the configured rules when present.
func InstructionPolicy(cfg *config.Config) retrieval.InstructionPolicy {
	policy := retrieval.DefaultInstructionPolicy()
	if len(cfg.Pipeline.InstructionPolicy) > 0 {
		policy.Rules = append([]string(nil), cfg.Pipeline.InstructionPolicy...)
	}
	return policy
}

func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("App: close", "err", err)
	}
}
