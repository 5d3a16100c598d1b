package main

import (
	"time"

	"go.uber.org/zap"

	"ragpipe/internal/chunker"
	"ragpipe/internal/config"
	"ragpipe/internal/embedding"
	"ragpipe/internal/ingest"
	llmfactory "ragpipe/internal/llm/factory"
	"ragpipe/internal/loader"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/service"
	"ragpipe/internal/summarizer"
	"ragpipe/internal/vectorstore"
)

// app holds the wired components shared by the serve and chat commands.
type app struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	stores  *vectorstore.Factory
	service *service.Service
}

func newApp(cfg *config.AppConfig, storage config.StorageConfig, logger *zap.Logger) *app {
	ing := ingest.New(ingest.Config{
		RawDir:        storage.RawDir,
		ProcessedDir:  storage.ProcessedDir,
		DocumentTypes: storage.DocumentTypes,
		MaxFileSizeMB: storage.MaxFileSizeMB,
	}, logger)

	ch := chunker.New(logger,
		chunker.WithSemanticBuffer(cfg.Chunking.SemanticBufferSize),
		chunker.WithBreakpointPercentile(cfg.Chunking.SemanticPercentile),
		chunker.WithParentFactor(cfg.Chunking.HierarchicalFactor),
		chunker.WithTokenEncoding(cfg.Chunking.TokenEncoding),
		chunker.WithMaxChunksPerDocument(cfg.Chunking.MaxChunksPerDocument),
	)

	stores := vectorstore.NewFactory(cfg.VectorStore, logger)
	builder := pipeline.NewBuilder(pipeline.Deps{
		Loader:           loader.New(logger),
		Chunker:          ch,
		Embedders:        embedding.NewFactory(cfg.Embedders),
		Stores:           stores,
		LLMs:             llmfactory.New(cfg.Providers),
		Summarizer:       summarizer.NewFrequencySummarizer(),
		SummarySentences: cfg.Summarizer.MaxSentences,
		CacheTTL:         time.Duration(cfg.Retrieval.QueryCacheTTLSecs) * time.Second,
		PreviewChars:     cfg.Retrieval.PreviewChars,
		Logger:           logger,
	})

	svc := service.New(service.Deps{
		Ingestor:         ing,
		Builder:          builder,
		Options:          cfg.Options(),
		MaxQuestionChars: cfg.Retrieval.MaxQuestionChars,
		Logger:           logger,
	})
	return &app{cfg: cfg, logger: logger, stores: stores, service: svc}
}

func (a *app) Close() {
	if err := a.stores.Close(); err != nil {
		a.logger.Warn("failed to close vector store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
