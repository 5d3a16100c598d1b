package factory

import (
	"fmt"
	"os"
	"time"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/llm"
	"ragpipe/internal/llm/ollama"
	"ragpipe/internal/llm/openai"
)

// Factory builds LLM clients for the providers declared in the config.
type Factory struct {
	providers map[string]config.ProviderConfig
}

func New(providers map[string]config.ProviderConfig) *Factory {
	return &Factory{providers: providers}
}

// NewClient returns a client bound to provider and model.
func (f *Factory) NewClient(provider, model string) (llm.Client, error) {
	p, ok := f.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidConfiguration, provider)
	}
	timeout := time.Duration(p.TimeoutSecs) * time.Second

	switch p.Kind {
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL:     p.BaseURL,
			Model:       model,
			Timeout:     timeout,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		}), nil
	case "openai":
		key := os.Getenv(p.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("provider %s: missing API key in env %s", provider, p.APIKeyEnv)
		}
		return openai.NewClient(openai.Config{
			BaseURL:     p.BaseURL,
			APIKey:      key,
			Model:       model,
			Timeout:     timeout,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider kind: %s", p.Kind)
	}
}
