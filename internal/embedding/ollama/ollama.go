package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ragpipe/internal/embedding/remote"
)

// Embedder calls a local Ollama server's /api/embed endpoint.
type Embedder struct {
	name      string
	baseURL   string
	model     string
	batchSize int
	client    *remote.Client
	dimension atomic.Int64
}

// Config configures the Ollama embedder.
type Config struct {
	Name      string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	BatchSize int
}

// NewEmbedder creates an Ollama embedder.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("ollama embedder requires a model")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Embedder{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		client:    remote.New(remote.Config{Timeout: cfg.Timeout}),
	}, nil
}

// Name returns the catalog name of this embedder.
func (e *Embedder) Name() string { return e.name }

// Prepare is not required for remote embedding. Dimension is set on first embed.
func (e *Embedder) Prepare(context.Context, []string) error { return nil }

// Dimension returns the dimensionality observed on the first response.
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	// Older servers answer /api/embeddings with a single vector.
	Embedding []float32 `json:"embedding"`
}

// Embed returns an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of the configured size.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embedResponse
	if err := e.client.PostJSON(ctx, e.baseURL+"/api/embed", embedRequest{Model: e.model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	vecs := resp.Embeddings
	if len(vecs) == 0 && len(resp.Embedding) > 0 {
		vecs = [][]float32{resp.Embedding}
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(vecs))
	}
	e.dimension.CompareAndSwap(0, int64(len(vecs[0])))
	return vecs, nil
}
