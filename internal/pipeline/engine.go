package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
)

// scoreEpsilon is the similarity below which a vector hit is treated as no hit.
const scoreEpsilon = 1e-9

// Engine answers questions against one built index. It is safe for
// concurrent use; Close makes every later Query fail.
type Engine struct {
	mu     sync.RWMutex
	closed bool

	embedder     domain.Embedder
	store        domain.VectorStore
	client       llm.Client
	chunks       []domain.Chunk
	topK         int
	cache        *cache.Cache
	previewChars int
	logger       *zap.Logger
}

type engineConfig struct {
	embedder     domain.Embedder
	store        domain.VectorStore
	client       llm.Client
	chunks       []domain.Chunk
	topK         int
	cacheTTL     time.Duration
	previewChars int
	logger       *zap.Logger
}

func newEngine(cfg engineConfig) *Engine {
	e := &Engine{
		embedder:     cfg.embedder,
		store:        cfg.store,
		client:       cfg.client,
		chunks:       cfg.chunks,
		topK:         cfg.topK,
		previewChars: cfg.previewChars,
		logger:       cfg.logger,
	}
	if cfg.cacheTTL > 0 {
		e.cache = cache.New(cfg.cacheTTL, 2*cfg.cacheTTL)
	}
	return e
}

// Query retrieves the most similar chunks, asks the LLM and returns its
// answer unchanged together with one source per file.
func (e *Engine) Query(ctx context.Context, question string) (domain.QueryResult, error) {
	if e == nil {
		return domain.QueryResult{}, domain.ErrNotInitialized
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return domain.QueryResult{}, domain.ErrNotInitialized
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return domain.QueryResult{}, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	if e.cache != nil {
		if hit, ok := e.cache.Get(question); ok {
			e.logger.Debug("answer cache hit")
			return hit.(domain.QueryResult), nil
		}
	}

	hits, err := e.retrieve(ctx, question)
	if err != nil {
		return domain.QueryResult{}, err
	}

	answer, err := e.client.Generate(ctx, buildPrompt(question, hits))
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("%w: generate answer: %v", domain.ErrCollaboratorFailure, err)
	}

	result := domain.QueryResult{Answer: answer, Sources: sources(hits, e.previewChars)}
	if e.cache != nil {
		e.cache.SetDefault(question, result)
	}
	return result, nil
}

// retrieve runs the vector search and falls back to lexical ranking when the
// query vector carries no signal.
func (e *Engine) retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %v", domain.ErrCollaboratorFailure, err)
	}
	if isZero(vec) {
		e.logger.Debug("query vector is empty, using lexical ranking")
		return lexicalSearch(question, e.chunks, e.topK), nil
	}
	hits, err := e.store.Search(ctx, vec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search index: %v", domain.ErrCollaboratorFailure, err)
	}
	for _, h := range hits {
		if h.Score > scoreEpsilon {
			return hits, nil
		}
	}
	e.logger.Debug("no vector hit, using lexical ranking")
	return lexicalSearch(question, e.chunks, e.topK), nil
}

// Close clears the index and the answer cache. It is idempotent.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.cache != nil {
		e.cache.Flush()
	}
	e.chunks = nil
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// sources keeps the first hit of every file in retrieval order.
func sources(hits []domain.SearchResult, previewChars int) []domain.Source {
	out := make([]domain.Source, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.Chunk.Filename]; dup {
			continue
		}
		seen[h.Chunk.Filename] = struct{}{}
		id, score := h.Chunk.ChunkID, h.Score
		out = append(out, domain.Source{
			Filename:    h.Chunk.Filename,
			TextPreview: preview(h.Chunk.Text, previewChars),
			ChunkID:     &id,
			Score:       &score,
		})
	}
	return out
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
