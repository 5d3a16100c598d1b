package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/embedding/tfidf"
)

const (
	// DefaultMaxChunksPerDocument caps fixed-window slicing of a single document.
	DefaultMaxChunksPerDocument = 1000
	// smallDocumentRunes is the length up to which a document is kept whole.
	smallDocumentRunes = 200
	// boundarySearchRunes bounds the forward scan for a sentence end.
	boundarySearchRunes = 200
)

// Chunker splits documents into retrieval chunks using one of the registered
// strategies. Any strategy failure on a document degrades to fixed slicing of
// that document, so a non-empty document always yields at least one chunk.
type Chunker struct {
	logger        *zap.Logger
	semantic      domain.Embedder
	bufferSize    int
	percentile    float64
	parentFactor  int
	tokenEncoding string
	maxChunks     int
	splitters     map[Strategy]SplitFunc
}

// SplitFunc cuts text into pieces of at most size units with the given overlap.
type SplitFunc func(text string, size, overlap int) ([]string, error)

// Option configures a Chunker.
type Option func(*Chunker)

// WithSplitter replaces the splitter behind a text-splitting strategy
// (recursive, langchain_recursive or token).
func WithSplitter(s Strategy, fn SplitFunc) Option {
	return func(c *Chunker) {
		if fn != nil {
			c.splitters[s] = fn
		}
	}
}

// WithSemanticEmbedder sets the embedder used to find semantic breakpoints.
func WithSemanticEmbedder(e domain.Embedder) Option {
	return func(c *Chunker) {
		if e != nil {
			c.semantic = e
		}
	}
}

// WithSemanticBuffer sets how many neighbouring sentences are combined on each
// side before embedding.
func WithSemanticBuffer(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.bufferSize = n
		}
	}
}

// WithBreakpointPercentile sets the distance percentile above which a semantic split occurs.
func WithBreakpointPercentile(p float64) Option {
	return func(c *Chunker) {
		if p > 0 && p <= 100 {
			c.percentile = p
		}
	}
}

// WithParentFactor sets the hierarchical parent size as a multiple of the chunk size.
func WithParentFactor(f int) Option {
	return func(c *Chunker) {
		if f > 1 {
			c.parentFactor = f
		}
	}
}

// WithTokenEncoding sets the tiktoken encoding used by the token strategy.
func WithTokenEncoding(name string) Option {
	return func(c *Chunker) {
		if name != "" {
			c.tokenEncoding = name
		}
	}
}

// WithMaxChunksPerDocument caps the number of fixed windows per document.
func WithMaxChunksPerDocument(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunks = n
		}
	}
}

// New creates a Chunker. The semantic strategy uses a private TF-IDF embedder
// unless one is supplied.
func New(logger *zap.Logger, opts ...Option) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chunker{
		logger:        logger.Named("chunker"),
		semantic:      tfidf.NewEmbedder(),
		bufferSize:    1,
		percentile:    90,
		parentFactor:  2,
		tokenEncoding: "cl100k_base",
		maxChunks:     DefaultMaxChunksPerDocument,
	}
	c.splitters = map[Strategy]SplitFunc{
		Recursive: func(text string, size, overlap int) ([]string, error) {
			return recursiveSplit(text, size, overlap, nil)
		},
		LangchainRecursive: func(text string, size, overlap int) ([]string, error) {
			return recursiveSplit(text, size, overlap, []string{"\n\n"})
		},
		Token: func(text string, size, overlap int) ([]string, error) {
			return tokenSplit(text, size, overlap, c.tokenEncoding)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// params carries the per-call sizing to the strategy handlers.
type params struct {
	size     int
	overlap  int
	strategy Strategy
}

// Chunk splits docs with the given strategy. Documents with empty text yield
// no chunks. The result is empty only when every document is empty.
func (c *Chunker) Chunk(ctx context.Context, docs []domain.Document, size, overlap int, strategy Strategy) []domain.Chunk {
	if !strategy.Valid() {
		c.logger.Warn("unknown chunking strategy, using fixed", zap.Int("strategy", int(strategy)))
		strategy = Fixed
	}
	if size <= 0 {
		size = domain.DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	p := params{size: size, overlap: overlap, strategy: strategy}

	nonEmpty := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			c.logger.Warn("skipping document with empty text", zap.String("filename", doc.Metadata.Filename))
			continue
		}
		nonEmpty = append(nonEmpty, doc)
	}

	var chunks []domain.Chunk
	if strategy == Semantic {
		chunks = c.semanticChunks(ctx, nonEmpty, p)
	} else {
		for _, doc := range nonEmpty {
			chunks = append(chunks, c.chunkDocument(doc, p)...)
		}
	}

	c.logger.Info("chunking complete",
		zap.String("strategy", strategy.String()),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)))
	return chunks
}

func (c *Chunker) chunkDocument(doc domain.Document, p params) []domain.Chunk {
	var (
		texts []string
		err   error
	)
	switch p.strategy {
	case Recursive, LangchainRecursive, Token:
		texts, err = c.splitters[p.strategy](doc.Text, p.size, p.overlap)
		if p.strategy == Recursive && err == nil && len(texts) == 1 && utf8.RuneCountInString(doc.Text) > p.size {
			err = errNoSplit
		}
	case Hierarchical:
		chunks, herr := c.hierarchical(doc, p)
		if herr == nil {
			return chunks
		}
		err = herr
	default:
		return c.fixed(doc, p)
	}
	if err == nil && len(texts) == 0 {
		err = errNoSplit
	}
	if err != nil {
		c.logger.Warn("chunking strategy failed, falling back to fixed",
			zap.String("strategy", p.strategy.String()),
			zap.String("filename", doc.Metadata.Filename),
			zap.Error(err))
		return c.fixed(doc, params{size: p.size, overlap: p.overlap, strategy: Fixed})
	}
	return buildChunks(doc, texts, p)
}

func buildChunks(doc domain.Document, texts []string, p params) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(texts))
	for _, text := range texts {
		chunks = append(chunks, newChunk(doc, text, len(chunks), p))
	}
	return chunks
}

func newChunk(doc domain.Document, text string, id int, p params) domain.Chunk {
	meta := map[string]string{}
	if doc.Metadata.FileType != "" {
		meta["file_type"] = doc.Metadata.FileType
	}
	if doc.Metadata.FilePath != "" {
		meta["file_path"] = doc.Metadata.FilePath
	}
	return domain.Chunk{
		Text:     text,
		Filename: doc.Metadata.Filename,
		ChunkID:  id,
		Strategy: p.strategy.String(),
		Size:     p.size,
		Overlap:  p.overlap,
		Metadata: meta,
	}
}
