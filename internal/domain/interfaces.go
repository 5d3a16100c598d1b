package domain

import (
	"context"
	"strconv"
)

// Document represents a single extracted file loaded from the corpus directory.
type Document struct {
	Text     string
	Metadata DocumentMetadata
}

// DocumentMetadata describes where a document came from.
type DocumentMetadata struct {
	Filename  string `json:"filename"`
	FilePath  string `json:"file_path"`
	FileType  string `json:"file_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// Chunk is a contiguous span of a document used as the unit of retrieval.
// ChunkID is sequential per source document, not global.
type Chunk struct {
	Text     string            `json:"text"`
	Filename string            `json:"filename"`
	ChunkID  int               `json:"chunk_id"`
	Strategy string            `json:"strategy"`
	Size     int               `json:"size"`
	Overlap  int               `json:"overlap"`
	Level    int               `json:"level,omitempty"`
	ParentID string            `json:"parent_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Key identifies a chunk across the whole build.
func (c Chunk) Key() string {
	return c.Filename + "#" + strconv.Itoa(c.ChunkID)
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Source is a deduplicated retrieval attribution returned with an answer.
type Source struct {
	Filename    string   `json:"filename"`
	TextPreview string   `json:"text_preview"`
	ChunkID     *int     `json:"chunk_id,omitempty"`
	Score       *float64 `json:"score,omitempty"`
}

// QueryResult is the answer to a question plus the sources it was grounded on.
type QueryResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// DocumentLoader reads every supported document from a directory.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]Document, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
