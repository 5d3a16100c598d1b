// Package pipeline builds a queryable retrieval engine from the processed
// corpus in five stages: load, chunk, embed, index and bind the LLM.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragpipe/internal/chunker"
	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
)

const (
	minTopK = 2
	maxTopK = 5
)

// EmbedderFactory returns a fresh embedder for a catalog name.
type EmbedderFactory interface {
	New(name string) (domain.Embedder, error)
}

// StoreFactory returns an empty vector store scoped to one build.
type StoreFactory interface {
	New(buildID string) (domain.VectorStore, error)
}

// ClientFactory returns an LLM client for a provider and model.
type ClientFactory interface {
	NewClient(provider, model string) (llm.Client, error)
}

// Deps are the collaborators a Builder wires together.
type Deps struct {
	Loader           domain.DocumentLoader
	Chunker          *chunker.Chunker
	Embedders        EmbedderFactory
	Stores           StoreFactory
	LLMs             ClientFactory
	Summarizer       domain.Summarizer
	SummarySentences int
	CacheTTL         time.Duration
	PreviewChars     int
	Logger           *zap.Logger
}

// Builder constructs engines. It holds no per-build state and may be reused.
type Builder struct {
	deps   Deps
	logger *zap.Logger
}

// BuildReport describes a successful build.
type BuildReport struct {
	BuildID       string         `json:"build_id"`
	Documents     int            `json:"documents"`
	Chunks        int            `json:"chunks"`
	TopK          int            `json:"top_k"`
	Strategy      string         `json:"strategy"`
	ChunksPerFile map[string]int `json:"chunks_per_file"`
	Summary       string         `json:"summary,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
}

func NewBuilder(deps Deps) *Builder {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Chunker == nil {
		deps.Chunker = chunker.New(deps.Logger)
	}
	if deps.PreviewChars <= 0 {
		deps.PreviewChars = 100
	}
	return &Builder{deps: deps, logger: deps.Logger.Named("pipeline")}
}

// TopK derives the retrieval depth from the corpus size.
func TopK(chunks int) int {
	return min(max(chunks/2, minTopK), maxTopK)
}

// Build runs every stage against the documents in dir. Nothing is retained
// on failure; the partially filled index is cleared before returning.
func (b *Builder) Build(ctx context.Context, sel domain.Selection, dir string) (*Engine, BuildReport, error) {
	start := time.Now()
	buildID := uuid.NewString()
	log := b.logger.With(zap.String("build_id", buildID))
	report := BuildReport{BuildID: buildID, Strategy: sel.ChunkingStrategy}

	// 1. load
	docs, err := b.deps.Loader.Load(ctx, dir)
	if err != nil {
		return nil, report, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, report, fmt.Errorf("%w: nothing to index in %s", domain.ErrNoDocuments, dir)
	}
	report.Documents = len(docs)
	log.Info("loaded documents", zap.Int("count", len(docs)))

	// 2. chunk
	strategy, ok := chunker.ParseStrategy(sel.ChunkingStrategy)
	if !ok {
		return nil, report, fmt.Errorf("%w: unknown chunking strategy %q", domain.ErrInvalidConfiguration, sel.ChunkingStrategy)
	}
	chunks := b.deps.Chunker.Chunk(ctx, docs, sel.ChunkSize, sel.ChunkOverlap, strategy)
	if len(chunks) == 0 {
		return nil, report, fmt.Errorf("%w: %d documents produced no chunks", domain.ErrChunkingFailed, len(docs))
	}
	report.Chunks = len(chunks)
	report.ChunksPerFile = distribution(chunks)
	for _, name := range sortedKeys(report.ChunksPerFile) {
		log.Info("chunk distribution", zap.String("filename", name), zap.Int("chunks", report.ChunksPerFile[name]))
	}

	// 3. embed
	embedder, err := b.deps.Embedders.New(sel.Embedder)
	if err != nil {
		return nil, report, err
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := embedder.Prepare(ctx, texts); err != nil {
		return nil, report, fmt.Errorf("%w: prepare embedder %s: %v", domain.ErrCollaboratorFailure, embedder.Name(), err)
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, report, fmt.Errorf("%w: embed chunks with %s: %v", domain.ErrCollaboratorFailure, embedder.Name(), err)
	}
	if len(vectors) != len(chunks) {
		return nil, report, fmt.Errorf("%w: embedder %s returned %d vectors for %d chunks",
			domain.ErrCollaboratorFailure, embedder.Name(), len(vectors), len(chunks))
	}
	dim := embedder.Dimension()
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}
	log.Info("embedded chunks", zap.String("embedder", embedder.Name()), zap.Int("dimension", dim))

	// 4. index
	store, err := b.deps.Stores.New(buildID)
	if err != nil {
		return nil, report, fmt.Errorf("%w: create vector store: %v", domain.ErrCollaboratorFailure, err)
	}
	if err := store.Init(ctx, dim); err != nil {
		b.discard(store, log)
		return nil, report, fmt.Errorf("%w: init vector store: %v", domain.ErrCollaboratorFailure, err)
	}
	if err := store.Upsert(ctx, chunks, vectors); err != nil {
		b.discard(store, log)
		return nil, report, fmt.Errorf("%w: index chunks: %v", domain.ErrCollaboratorFailure, err)
	}
	log.Info("vector index created", zap.Int("chunks", len(chunks)))

	// 5. query interface
	client, err := b.deps.LLMs.NewClient(sel.Provider, sel.Model)
	if err != nil {
		b.discard(store, log)
		return nil, report, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	report.TopK = TopK(len(chunks))

	if b.deps.Summarizer != nil {
		var corpus strings.Builder
		for _, d := range docs {
			corpus.WriteString(d.Text)
			corpus.WriteString("\n")
		}
		if summary, err := b.deps.Summarizer.Summarize(corpus.String(), b.deps.SummarySentences); err != nil {
			log.Warn("summary failed", zap.Error(err))
		} else {
			report.Summary = summary
		}
	}

	engine := newEngine(engineConfig{
		embedder:     embedder,
		store:        store,
		client:       client,
		chunks:       chunks,
		topK:         report.TopK,
		cacheTTL:     b.deps.CacheTTL,
		previewChars: b.deps.PreviewChars,
		logger:       log,
	})
	report.DurationMS = time.Since(start).Milliseconds()
	log.Info("pipeline ready", zap.Int("top_k", report.TopK), zap.Int64("duration_ms", report.DurationMS))
	return engine, report, nil
}

func (b *Builder) discard(store domain.VectorStore, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Clear(ctx); err != nil {
		log.Warn("failed to clear partial index", zap.Error(err))
	}
}

func distribution(chunks []domain.Chunk) map[string]int {
	out := make(map[string]int)
	for _, ch := range chunks {
		out[ch.Filename]++
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
