package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder uses an OpenAI-compatible embeddings API.
type Embedder struct {
	name      string
	client    *openai.Client
	model     string
	batchSize int
	dimension atomic.Int64
}

// Config configures the OpenAI embedder.
type Config struct {
	Name      string
	BaseURL   string
	APIKeyEnv string
	Model     string
	BatchSize int
}

// NewEmbedder creates an OpenAI embedder reading its key from the configured environment variable.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	conf := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	return &Embedder{
		name:      cfg.Name,
		client:    openai.NewClientWithConfig(conf),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
	}, nil
}

// Name returns the catalog name of this embedder.
func (e *Embedder) Name() string { return e.name }

// Prepare is a no-op for hosted models.
func (e *Embedder) Prepare(context.Context, []string) error { return nil }

// Dimension returns the dimensionality observed on the first response.
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

// Embed generates an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) == 0 {
		return nil, errors.New("cannot embed empty text")
	}
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, batchSize inputs per request.
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
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d vectors, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		v := d.Embedding
		// L2 normalize (important for cosine similarity)
		l2normalize(v)
		out[d.Index] = v
	}
	e.dimension.CompareAndSwap(0, int64(len(out[0])))
	return out, nil
}

func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
