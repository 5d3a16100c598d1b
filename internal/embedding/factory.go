// Package embedding builds the embedder named in a pipeline selection from
// the configured catalog.
package embedding

import (
	"fmt"
	"os"
	"time"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding/huggingface"
	"ragpipe/internal/embedding/ollama"
	"ragpipe/internal/embedding/openai"
	"ragpipe/internal/embedding/tfidf"
)

// Factory creates embedders from catalog entries. Each call returns a new
// instance, so corpus-fitted state never leaks between builds.
type Factory struct {
	catalog map[string]config.EmbedderConfig
}

// NewFactory indexes the catalog by name.
func NewFactory(entries []config.EmbedderConfig) *Factory {
	catalog := make(map[string]config.EmbedderConfig, len(entries))
	for _, e := range entries {
		catalog[e.Name] = e
	}
	return &Factory{catalog: catalog}
}

// New returns a fresh embedder for the catalog entry called name.
func (f *Factory) New(name string) (domain.Embedder, error) {
	entry, ok := f.catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfiguration, name)
	}
	timeout := time.Duration(entry.TimeoutSecs) * time.Second

	switch entry.Backend {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "ollama":
		return ollama.NewEmbedder(ollama.Config{
			Name:      entry.Name,
			BaseURL:   entry.BaseURL,
			Model:     entry.Model,
			Timeout:   timeout,
			BatchSize: entry.BatchSize,
		})
	case "huggingface":
		return huggingface.NewEmbedder(huggingface.Config{
			Name:              entry.Name,
			BaseURL:           entry.BaseURL,
			Model:             entry.Model,
			APIKey:            os.Getenv(entry.APIKeyEnv),
			Timeout:           timeout,
			RequestsPerSecond: entry.RequestsPerSecond,
			BatchSize:         entry.BatchSize,
		})
	case "openai":
		return openai.NewEmbedder(openai.Config{
			Name:      entry.Name,
			BaseURL:   entry.BaseURL,
			APIKeyEnv: entry.APIKeyEnv,
			Model:     entry.Model,
			BatchSize: entry.BatchSize,
		})
	default:
		return nil, fmt.Errorf("embedder %q: unknown backend %q", name, entry.Backend)
	}
}
