package domain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Chunk size and overlap bounds exposed to clients.
const (
	MinChunkSize        = 100
	MaxChunkSize        = 2000
	DefaultChunkSize    = 800
	MinChunkOverlap     = 0
	MaxChunkOverlap     = 500
	DefaultChunkOverlap = 100
	DefaultStrategy     = "fixed"
)

// Selection is the user's pipeline configuration. It is a value type and is
// never mutated after a successful Configure.
type Selection struct {
	Provider         string `json:"provider" yaml:"provider" validate:"required"`
	Model            string `json:"model" yaml:"model" validate:"required"`
	Embedder         string `json:"embedder" yaml:"embedder" validate:"required"`
	ChunkingStrategy string `json:"chunking_strategy" yaml:"chunking_strategy" validate:"required"`
	ChunkSize        int    `json:"chunk_size" yaml:"chunk_size" validate:"gte=100,lte=2000"`
	ChunkOverlap     int    `json:"chunk_overlap" yaml:"chunk_overlap" validate:"gte=0,lte=500,ltfield=ChunkSize"`
}

// WithDefaults fills the optional fields a caller may omit. Overlap is only
// defaulted together with an omitted size because zero is a legal overlap.
func (s Selection) WithDefaults() Selection {
	if s.ChunkingStrategy == "" {
		s.ChunkingStrategy = DefaultStrategy
	}
	if s.ChunkSize == 0 {
		s.ChunkSize = DefaultChunkSize
		if s.ChunkOverlap == 0 {
			s.ChunkOverlap = DefaultChunkOverlap
		}
	}
	return s
}

// Range describes an inclusive integer range with a default.
type Range struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// DefaultSettings is the provider/model pre-selected in clients.
type DefaultSettings struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Options is the registry of candidate sets a Selection is validated against.
type Options struct {
	Providers          map[string][]string `json:"providers"`
	Embedders          []string            `json:"embedders"`
	ChunkingStrategies []string            `json:"chunking_strategies"`
	ChunkSizeRange     Range               `json:"chunk_size_range"`
	ChunkOverlapRange  Range               `json:"chunk_overlap_range"`
	DocumentTypes      []string            `json:"document_types"`
	MaxFileSizeMB      int                 `json:"max_file_size_mb"`
	DefaultSettings    DefaultSettings     `json:"default_settings"`
}

// ProviderNames returns the registered providers in stable order.
func (o Options) ProviderNames() []string {
	names := make([]string, 0, len(o.Providers))
	for name := range o.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks sel against the registered candidate sets. Every failure
// wraps ErrInvalidConfiguration.
func (o Options) Validate(sel Selection) error {
	if err := validate.Struct(sel); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, describeValidation(err))
	}
	models, ok := o.Providers[sel.Provider]
	if !ok {
		return fmt.Errorf("%w: invalid provider %q, available: %s",
			ErrInvalidConfiguration, sel.Provider, strings.Join(o.ProviderNames(), ", "))
	}
	if !slices.Contains(models, sel.Model) {
		return fmt.Errorf("%w: invalid model %q for %s, available: %s",
			ErrInvalidConfiguration, sel.Model, sel.Provider, strings.Join(models, ", "))
	}
	if !slices.Contains(o.Embedders, sel.Embedder) {
		return fmt.Errorf("%w: invalid embedder %q, available: %s",
			ErrInvalidConfiguration, sel.Embedder, strings.Join(o.Embedders, ", "))
	}
	if !slices.Contains(o.ChunkingStrategies, sel.ChunkingStrategy) {
		return fmt.Errorf("%w: invalid chunking strategy %q, available: %s",
			ErrInvalidConfiguration, sel.ChunkingStrategy, strings.Join(o.ChunkingStrategies, ", "))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "ltfield":
			msgs = append(msgs, fmt.Sprintf("%s must be less than %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return strings.Join(msgs, "; ")
}

// State is the lifecycle state of the ingestion service.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateInitialized:
		return "initialized"
	default:
		return "unconfigured"
	}
}

// MarshalText renders the state by name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
