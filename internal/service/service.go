// Package service owns the pipeline lifecycle: the uploaded corpus, the
// active selection and at most one built engine.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
	"ragpipe/internal/pipeline"
)

// DefaultMaxQuestionChars bounds a chat question when no limit is configured.
const DefaultMaxQuestionChars = 1000

// FileIngestor persists uploads and exposes the processed corpus.
type FileIngestor interface {
	Save(ctx context.Context, files []ingest.File) ingest.UploadReport
	ProcessedFiles() ([]string, error)
	ProcessedDir() string
	Clear() error
}

// PipelineBuilder builds a query engine from the processed corpus.
type PipelineBuilder interface {
	Build(ctx context.Context, sel domain.Selection, dir string) (*pipeline.Engine, pipeline.BuildReport, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Ingestor         FileIngestor
	Builder          PipelineBuilder
	Options          domain.Options
	MaxQuestionChars int
	Logger           *zap.Logger
}

// Status is a snapshot of the lifecycle.
type Status struct {
	State          domain.State          `json:"state"`
	FilesProcessed int                   `json:"files_processed"`
	Files          []string              `json:"files"`
	Configuration  *domain.Selection     `json:"configuration"`
	ReadyForChat   bool                  `json:"ready_for_chat"`
	LastBuild      *pipeline.BuildReport `json:"last_build,omitempty"`
}

// Service is the Upload → Configure → Initialize → Query state machine.
// Every operation holds the same mutex, so a build never races a configure.
type Service struct {
	mu sync.Mutex

	ingestor    FileIngestor
	builder     PipelineBuilder
	options     domain.Options
	maxQuestion int
	logger      *zap.Logger

	state     domain.State
	selection *domain.Selection
	engine    *pipeline.Engine
	lastBuild *pipeline.BuildReport
}

func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxQuestionChars <= 0 {
		deps.MaxQuestionChars = DefaultMaxQuestionChars
	}
	return &Service{
		ingestor:    deps.Ingestor,
		builder:     deps.Builder,
		options:     deps.Options,
		maxQuestion: deps.MaxQuestionChars,
		logger:      deps.Logger.Named("service"),
		state:       domain.StateUnconfigured,
	}
}

// Options returns the registered candidate sets.
func (s *Service) Options() domain.Options {
	return s.options
}

// Upload stores files as the new corpus. Replacing the corpus of an
// initialized pipeline drops the engine but keeps the selection.
func (s *Service) Upload(ctx context.Context, files []ingest.File) (ingest.UploadReport, error) {
	if len(files) == 0 {
		return ingest.UploadReport{}, fmt.Errorf("%w: no files provided", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	report := s.ingestor.Save(ctx, files)
	if report.CorpusReplaced && s.state == domain.StateInitialized {
		s.closeEngine(ctx)
		s.state = domain.StateConfigured
		s.logger.Info("corpus replaced, pipeline needs initialize")
	}
	s.logger.Info("upload complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Bool("corpus_replaced", report.CorpusReplaced))

	if report.Succeeded == 0 {
		return report, fmt.Errorf("%w: %w: none of %d files could be processed",
			domain.ErrNoDocuments, domain.ErrExtractionFailed, len(files))
	}
	return report, nil
}

// Configure validates sel and makes it the active selection. Any built
// engine is discarded. On error nothing changes.
func (s *Service) Configure(sel domain.Selection) (domain.Selection, error) {
	sel = sel.WithDefaults()
	if err := s.options.Validate(sel); err != nil {
		return domain.Selection{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeEngine(context.Background())
	s.selection = &sel
	s.state = domain.StateConfigured
	s.logger.Info("pipeline configured",
		zap.String("provider", sel.Provider),
		zap.String("model", sel.Model),
		zap.String("embedder", sel.Embedder),
		zap.String("strategy", sel.ChunkingStrategy),
		zap.Int("chunk_size", sel.ChunkSize),
		zap.Int("chunk_overlap", sel.ChunkOverlap))
	return sel, nil
}

// Initialize builds a fresh engine from the current corpus and selection.
// The state is Initialized only when every stage succeeded.
func (s *Service) Initialize(ctx context.Context) (pipeline.BuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selection == nil {
		return pipeline.BuildReport{}, domain.ErrNotConfigured
	}
	files, err := s.ingestor.ProcessedFiles()
	if err != nil {
		return pipeline.BuildReport{}, fmt.Errorf("list corpus: %w", err)
	}
	if len(files) == 0 {
		return pipeline.BuildReport{}, fmt.Errorf("%w: upload documents first", domain.ErrNoDocuments)
	}

	s.closeEngine(ctx)
	s.state = domain.StateConfigured
	s.lastBuild = nil

	engine, report, err := s.builder.Build(ctx, *s.selection, s.ingestor.ProcessedDir())
	if err != nil {
		s.logger.Error("pipeline initialization failed", zap.Error(err), zap.String("error_kind", domain.Kind(err)))
		return report, err
	}
	s.engine = engine
	s.lastBuild = &report
	s.state = domain.StateInitialized
	return report, nil
}

// Query answers question with the initialized engine.
func (s *Service) Query(ctx context.Context, question string) (domain.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.QueryResult{}, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(question); n > s.maxQuestion {
		return domain.QueryResult{}, fmt.Errorf("%w: question is %d characters, limit is %d",
			domain.ErrInvalidInput, n, s.maxQuestion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateInitialized {
		return domain.QueryResult{}, fmt.Errorf("%w: state is %s", domain.ErrNotReady, s.state)
	}
	return s.engine.Query(ctx, question)
}

// Reset drops the engine, the selection and the corpus. It is valid in any state.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeEngine(ctx)
	s.selection = nil
	s.lastBuild = nil
	s.state = domain.StateUnconfigured
	if err := s.ingestor.Clear(); err != nil {
		return fmt.Errorf("clear corpus: %w", err)
	}
	s.logger.Info("pipeline reset")
	return nil
}

// Status reports the current lifecycle snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.ingestor.ProcessedFiles()
	if err != nil {
		s.logger.Warn("failed to list corpus", zap.Error(err))
	}
	st := Status{
		State:          s.state,
		FilesProcessed: len(files),
		Files:          files,
		ReadyForChat:   s.state == domain.StateInitialized,
		LastBuild:      s.lastBuild,
	}
	if st.Files == nil {
		st.Files = []string{}
	}
	if s.selection != nil {
		sel := *s.selection
		st.Configuration = &sel
	}
	return st
}

// Close releases the built engine and leaves the corpus on disk. The
// service answers no more questions until it is initialized again.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeEngine(ctx)
	if s.state == domain.StateInitialized {
		s.state = domain.StateConfigured
	}
}

// closeEngine releases the current engine. Failures are logged only.
func (s *Service) closeEngine(ctx context.Context) {
	if s.engine == nil {
		return
	}
	if err := s.engine.Close(ctx); err != nil {
		s.logger.Warn("failed to close pipeline", zap.Error(err))
	}
	s.engine = nil
}
