package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"ragpipe/internal/chunker"
	"ragpipe/internal/domain"
)

// ProviderConfig describes an LLM backend family and the models offered under it.
type ProviderConfig struct {
	// Kind selects the client implementation: "ollama" or "openai" (any OpenAI-compatible API).
	Kind        string   `yaml:"kind"`
	BaseURL     string   `yaml:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env,omitempty"`
	Models      []string `yaml:"models"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// EmbedderConfig is one entry of the embedder catalog offered to clients.
type EmbedderConfig struct {
	Name              string  `yaml:"name"`
	Backend           string  `yaml:"backend"`
	Model             string  `yaml:"model,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	APIKeyEnv         string  `yaml:"api_key_env,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	BatchSize         int     `yaml:"batch_size,omitempty"`
}

// ChunkingConfig configures the registered chunking strategies.
type ChunkingConfig struct {
	Strategies           []string `yaml:"strategies"`
	SemanticBufferSize   int      `yaml:"semantic_buffer_size"`
	SemanticPercentile   float64  `yaml:"semantic_breakpoint_percentile"`
	HierarchicalFactor   int      `yaml:"hierarchical_parent_factor"`
	TokenEncoding        string   `yaml:"token_encoding"`
	MaxChunksPerDocument int      `yaml:"max_chunks_per_document"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// PgvectorConfig contains connection details for a Postgres database with the vector extension.
type PgvectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// StorageConfig configures where uploads are persisted.
type StorageConfig struct {
	RawDir        string   `yaml:"raw_dir"`
	ProcessedDir  string   `yaml:"processed_dir"`
	DocumentTypes []string `yaml:"document_types"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Port               string `yaml:"port"`
	BodyLimitMB        int    `yaml:"body_limit_mb"`
	CorsAllowedOrigins string `yaml:"cors_allowed_origins"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	FilePath   string `yaml:"file_path"`
	Production bool   `yaml:"production"`
	Debug      bool   `yaml:"debug"`
}

// RetrievalConfig tunes the query engine.
type RetrievalConfig struct {
	QueryCacheTTLSecs int `yaml:"query_cache_ttl_secs"`
	PreviewChars      int `yaml:"preview_chars"`
	MaxQuestionChars  int `yaml:"max_question_chars"`
}

// SummarizerConfig configures the corpus summary attached to build reports.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	AppName         string                    `yaml:"app_name"`
	Version         string                    `yaml:"version"`
	Server          ServerConfig              `yaml:"server"`
	Log             LogConfig                 `yaml:"log"`
	Storage         StorageConfig             `yaml:"storage"`
	DefaultProvider string                    `yaml:"default_provider"`
	DefaultModel    string                    `yaml:"default_model"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	Embedders       []EmbedderConfig          `yaml:"embedders"`
	Chunking        ChunkingConfig            `yaml:"chunking"`
	VectorStore     VectorStoreConfig         `yaml:"vector_store"`
	Retrieval       RetrievalConfig           `yaml:"retrieval"`
	Summarizer      SummarizerConfig          `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragpipe/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragpipe/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the defaults point at registered candidates and that limits are sane.
func (c *AppConfig) Validate() error {
	if c.AppName == "" {
		return errors.New("app_name is required")
	}
	if c.Version == "" {
		return errors.New("version is required")
	}
	if len(c.Providers) == 0 {
		return errors.New("providers cannot be empty")
	}
	if len(c.Embedders) == 0 {
		return errors.New("embedders cannot be empty")
	}
	if len(c.Chunking.Strategies) == 0 {
		return errors.New("chunking strategies cannot be empty")
	}
	for _, name := range c.Chunking.Strategies {
		if _, ok := chunker.ParseStrategy(name); !ok {
			return fmt.Errorf("chunking strategy %q is unknown, available: %s", name, strings.Join(chunker.Names(), ", "))
		}
	}
	p, ok := c.Providers[c.DefaultProvider]
	if !ok {
		return fmt.Errorf("default_provider %q not in providers", c.DefaultProvider)
	}
	if !slices.Contains(p.Models, c.DefaultModel) {
		return fmt.Errorf("default_model %q not available for provider %q", c.DefaultModel, c.DefaultProvider)
	}
	for name, pc := range c.Providers {
		if pc.Kind != "ollama" && pc.Kind != "openai" {
			return fmt.Errorf("provider %q: unknown kind %q", name, pc.Kind)
		}
	}
	seen := make(map[string]struct{}, len(c.Embedders))
	for _, e := range c.Embedders {
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("embedder %q registered twice", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	if c.Storage.MaxFileSizeMB <= 0 {
		return errors.New("max_file_size_mb must be positive")
	}
	return nil
}

// Options derives the client-facing candidate sets from the config.
func (c *AppConfig) Options() domain.Options {
	providers := make(map[string][]string, len(c.Providers))
	for name, p := range c.Providers {
		providers[name] = slices.Clone(p.Models)
	}
	embedders := make([]string, 0, len(c.Embedders))
	for _, e := range c.Embedders {
		embedders = append(embedders, e.Name)
	}
	return domain.Options{
		Providers:          providers,
		Embedders:          embedders,
		ChunkingStrategies: slices.Clone(c.Chunking.Strategies),
		ChunkSizeRange: domain.Range{
			Min: domain.MinChunkSize, Max: domain.MaxChunkSize, Default: domain.DefaultChunkSize,
		},
		ChunkOverlapRange: domain.Range{
			Min: domain.MinChunkOverlap, Max: domain.MaxChunkOverlap, Default: domain.DefaultChunkOverlap,
		},
		DocumentTypes:   slices.Clone(c.Storage.DocumentTypes),
		MaxFileSizeMB:   c.Storage.MaxFileSizeMB,
		DefaultSettings: domain.DefaultSettings{Provider: c.DefaultProvider, Model: c.DefaultModel},
	}
}

// Embedder looks up a catalog entry by name.
func (c *AppConfig) Embedder(name string) (EmbedderConfig, bool) {
	for _, e := range c.Embedders {
		if e.Name == name {
			return e, true
		}
	}
	return EmbedderConfig{}, false
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragpipe", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		AppName:         "ragpipe",
		Version:         "1.0.0",
		DefaultProvider: "ollama",
		DefaultModel:    "gemma2:2b",
		Providers: map[string]ProviderConfig{
			"ollama": {
				Kind:   "ollama",
				Models: []string{"gemma2:2b", "qwen2.5:1.5b", "llama3.2:3b", "mistral:7b", "tinyllama:latest"},
			},
			"groq": {
				Kind:      "openai",
				BaseURL:   "https://api.groq.com/openai/v1",
				APIKeyEnv: "GROQ_API_KEY",
				Models:    []string{"gemma2-9b-it", "llama-3.1-8b-instant"},
			},
		},
		Embedders: []EmbedderConfig{
			{Name: "all-MiniLM-L6-v2", Backend: "huggingface", Model: "sentence-transformers/all-MiniLM-L6-v2"},
			{Name: "all-mpnet-base-v2", Backend: "huggingface", Model: "sentence-transformers/all-mpnet-base-v2"},
			{Name: "paraphrase-multilingual-MiniLM-L12-v2", Backend: "huggingface", Model: "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"},
			{Name: "distiluse-base-multilingual-cased", Backend: "huggingface", Model: "sentence-transformers/distiluse-base-multilingual-cased"},
			{Name: "LaBSE", Backend: "huggingface", Model: "sentence-transformers/LaBSE"},
			{Name: "nomic-embed-text", Backend: "ollama", Model: "nomic-embed-text"},
			{Name: "tfidf", Backend: "tfidf"},
		},
		Chunking: ChunkingConfig{
			Strategies: []string{"fixed", "recursive", "langchain_recursive", "token", "hierarchical", "semantic"},
		},
		VectorStore: VectorStoreConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.AppName == "" {
		cfg.AppName = "ragpipe"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if cfg.Server.BodyLimitMB == 0 {
		cfg.Server.BodyLimitMB = 200
	}
	if cfg.Server.CorsAllowedOrigins == "" {
		cfg.Server.CorsAllowedOrigins = "*"
	}
	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = "logs/ragpipe.log"
	}
	if cfg.Storage.RawDir == "" {
		cfg.Storage.RawDir = "data/raw"
	}
	if cfg.Storage.ProcessedDir == "" {
		cfg.Storage.ProcessedDir = "data/documents"
	}
	if len(cfg.Storage.DocumentTypes) == 0 {
		cfg.Storage.DocumentTypes = []string{"txt", "md", "pdf"}
	}
	if cfg.Storage.MaxFileSizeMB == 0 {
		cfg.Storage.MaxFileSizeMB = 50
	}
	for name, p := range cfg.Providers {
		if p.Kind == "ollama" && p.BaseURL == "" {
			p.BaseURL = "http://localhost:11434"
		}
		if p.Kind == "openai" && p.BaseURL == "" {
			p.BaseURL = "https://api.openai.com/v1"
		}
		if p.TimeoutSecs == 0 {
			p.TimeoutSecs = 120
		}
		if p.Temperature == 0 {
			p.Temperature = 0.1
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = 1024
		}
		cfg.Providers[name] = p
	}
	for i := range cfg.Embedders {
		e := &cfg.Embedders[i]
		switch e.Backend {
		case "huggingface":
			if e.BaseURL == "" {
				e.BaseURL = "https://router.huggingface.co/hf-inference/models"
			}
			if e.APIKeyEnv == "" {
				e.APIKeyEnv = "HF_TOKEN"
			}
			if e.RequestsPerSecond == 0 {
				e.RequestsPerSecond = 5
			}
		case "ollama":
			if e.BaseURL == "" {
				e.BaseURL = "http://localhost:11434"
			}
		case "openai":
			if e.BaseURL == "" {
				e.BaseURL = "https://api.openai.com/v1"
			}
			if e.APIKeyEnv == "" {
				e.APIKeyEnv = "OPENAI_API_KEY"
			}
			if e.Model == "" {
				e.Model = "text-embedding-3-small"
			}
		}
		if e.TimeoutSecs == 0 {
			e.TimeoutSecs = 30
		}
		if e.BatchSize == 0 {
			e.BatchSize = 32
		}
	}
	if cfg.Chunking.SemanticBufferSize == 0 {
		cfg.Chunking.SemanticBufferSize = 1
	}
	if cfg.Chunking.SemanticPercentile == 0 {
		cfg.Chunking.SemanticPercentile = 90
	}
	if cfg.Chunking.HierarchicalFactor == 0 {
		cfg.Chunking.HierarchicalFactor = 2
	}
	if cfg.Chunking.TokenEncoding == "" {
		cfg.Chunking.TokenEncoding = "cl100k_base"
	}
	if cfg.Chunking.MaxChunksPerDocument == 0 {
		cfg.Chunking.MaxChunksPerDocument = 1000
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "ragpipe"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Type == "pgvector" && cfg.VectorStore.Pgvector != nil {
		p := cfg.VectorStore.Pgvector
		if p.DSNEnv == "" {
			p.DSNEnv = "PGVECTOR_DSN"
		}
		if p.Table == "" {
			p.Table = "rag_chunks"
		}
	}
	if cfg.Retrieval.QueryCacheTTLSecs == 0 {
		cfg.Retrieval.QueryCacheTTLSecs = 600
	}
	if cfg.Retrieval.PreviewChars == 0 {
		cfg.Retrieval.PreviewChars = 100
	}
	if cfg.Retrieval.MaxQuestionChars == 0 {
		cfg.Retrieval.MaxQuestionChars = 1000
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}

// applyEnvOverrides lets deployments move the port, log file and data
// directories without editing the YAML file.
func applyEnvOverrides(cfg *AppConfig) {
	cfg.Server.Port = getEnv("RAGPIPE_PORT", cfg.Server.Port)
	cfg.Log.FilePath = getEnv("RAGPIPE_LOG_FILE", cfg.Log.FilePath)
	cfg.Storage.RawDir = getEnv("RAGPIPE_RAW_DIR", cfg.Storage.RawDir)
	cfg.Storage.ProcessedDir = getEnv("RAGPIPE_PROCESSED_DIR", cfg.Storage.ProcessedDir)
	cfg.Storage.MaxFileSizeMB = getEnvAsInt("RAGPIPE_MAX_FILE_SIZE_MB", cfg.Storage.MaxFileSizeMB)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
