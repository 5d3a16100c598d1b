package huggingface

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"ragpipe/internal/embedding/remote"
)

// Embedder calls the Hugging Face inference feature-extraction pipeline for a
// sentence-transformers model.
type Embedder struct {
	name      string
	url       string
	batchSize int
	client    *remote.Client
	dimension atomic.Int64
}

// Config configures the Hugging Face embedder.
type Config struct {
	Name              string
	BaseURL           string
	Model             string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	BatchSize         int
}

// NewEmbedder creates a Hugging Face embedder. The API key is optional for
// public models but anonymous calls are heavily rate limited.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("huggingface embedder requires a model")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://router.huggingface.co/hf-inference/models"
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &Embedder{
		name:      cfg.Name,
		url:       fmt.Sprintf("%s/%s/pipeline/feature-extraction", strings.TrimRight(cfg.BaseURL, "/"), cfg.Model),
		batchSize: cfg.BatchSize,
		client: remote.New(remote.Config{
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Headers:           headers,
		}),
	}, nil
}

// Name returns the catalog name of this embedder.
func (e *Embedder) Name() string { return e.name }

// Prepare is a no-op; the model is hosted remotely.
func (e *Embedder) Prepare(context.Context, []string) error { return nil }

// Dimension returns the dimensionality observed on the first response.
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

type featureRequest struct {
	Inputs  []string       `json:"inputs"`
	Options featureOptions `json:"options"`
}

type featureOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Embed returns an L2-normalised embedding for text.
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
	var vecs [][]float32
	req := featureRequest{Inputs: texts, Options: featureOptions{WaitForModel: true}}
	if err := e.client.PostJSON(ctx, e.url, req, &vecs); err != nil {
		return nil, fmt.Errorf("huggingface embed %s: %w", e.name, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("huggingface embed %s: expected %d vectors, got %d", e.name, len(texts), len(vecs))
	}
	for _, v := range vecs {
		l2normalize(v)
	}
	if len(vecs) > 0 {
		e.dimension.CompareAndSwap(0, int64(len(vecs[0])))
	}
	return vecs, nil
}

// l2normalize normalizes a vector to unit length
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
