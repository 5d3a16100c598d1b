package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/chunker"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
	"ragpipe/internal/llm"
	"ragpipe/internal/loader"
	"ragpipe/internal/summarizer"
	"ragpipe/internal/vectorstore"
)

const (
	goText      = "Goroutines are lightweight threads managed by the Go runtime. Channels connect goroutines."
	dbText      = "Postgres stores rows in heap pages. Indexes speed up lookups on large tables."
	cookingText = "Simmer the tomato sauce for twenty minutes. Season with basil and salt."
)

type fakeClient struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
}

func (f *fakeClient) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return f.Generate(ctx, history[len(history)-1].Content, opts...)
}

func (f *fakeClient) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeLLMs struct {
	client *fakeClient
	err    error
}

func (f fakeLLMs) NewClient(string, string) (llm.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type brokenEmbedder struct{ domain.Embedder }

func (brokenEmbedder) Name() string { return "broken" }

func (brokenEmbedder) Prepare(context.Context, []string) error { return errors.New("model offline") }

type brokenEmbedders struct{}

func (brokenEmbedders) New(string) (domain.Embedder, error) { return brokenEmbedder{}, nil }

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
	}
	return dir
}

func defaultCorpus(t *testing.T) string {
	return writeCorpus(t, map[string]string{
		"go.txt":     goText,
		"db.txt":     dbText,
		"cooking.md": cookingText,
	})
}

func testDeps(client *fakeClient, ttl time.Duration) Deps {
	return Deps{
		Loader:           loader.New(nil),
		Chunker:          chunker.New(nil),
		Embedders:        embedding.NewFactory([]config.EmbedderConfig{{Name: "tfidf", Backend: "tfidf"}}),
		Stores:           vectorstore.NewFactory(config.VectorStoreConfig{Type: "memory"}, nil),
		LLMs:             fakeLLMs{client: client},
		Summarizer:       summarizer.NewFrequencySummarizer(),
		SummarySentences: 2,
		CacheTTL:         ttl,
	}
}

func testSelection() domain.Selection {
	return domain.Selection{
		Provider:         "fake",
		Model:            "fake-model",
		Embedder:         "tfidf",
		ChunkingStrategy: "fixed",
		ChunkSize:        800,
		ChunkOverlap:     100,
	}
}

func build(t *testing.T, client *fakeClient, ttl time.Duration) *Engine {
	t.Helper()
	engine, _, err := NewBuilder(testDeps(client, ttl)).Build(context.Background(), testSelection(), defaultCorpus(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return engine
}

func TestTopK(t *testing.T) {
	cases := map[int]int{0: 2, 1: 2, 4: 2, 5: 2, 6: 3, 8: 4, 10: 5, 11: 5, 500: 5}
	for chunks, want := range cases {
		assert.Equal(t, want, TopK(chunks), "chunks=%d", chunks)
	}
}

func TestBuild_Report(t *testing.T) {
	engine, report, err := NewBuilder(testDeps(&fakeClient{}, 0)).Build(context.Background(), testSelection(), defaultCorpus(t))
	require.NoError(t, err)
	defer engine.Close(context.Background())

	_, err = uuid.Parse(report.BuildID)
	assert.NoError(t, err)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 2, report.TopK)
	assert.Equal(t, 2, engine.topK)
	assert.Equal(t, "fixed", report.Strategy)
	assert.Equal(t, map[string]int{"go.txt": 1, "db.txt": 1, "cooking.md": 1}, report.ChunksPerFile)
	assert.NotEmpty(t, report.Summary)
}

func TestBuild_EmptyCorpus(t *testing.T) {
	_, _, err := NewBuilder(testDeps(&fakeClient{}, 0)).Build(context.Background(), testSelection(), t.TempDir())
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
}

func TestBuild_BlankDocumentsFailChunking(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"blank.txt": "  \n\t "})
	_, _, err := NewBuilder(testDeps(&fakeClient{}, 0)).Build(context.Background(), testSelection(), dir)
	assert.ErrorIs(t, err, domain.ErrChunkingFailed)
}

func TestBuild_UnknownStrategyFailsFast(t *testing.T) {
	sel := testSelection()
	sel.ChunkingStrategy = "paragraphs"
	_, _, err := NewBuilder(testDeps(&fakeClient{}, 0)).Build(context.Background(), sel, defaultCorpus(t))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestBuild_UnknownEmbedder(t *testing.T) {
	sel := testSelection()
	sel.Embedder = "word2vec"
	_, _, err := NewBuilder(testDeps(&fakeClient{}, 0)).Build(context.Background(), sel, defaultCorpus(t))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestBuild_EmbedderFailure(t *testing.T) {
	deps := testDeps(&fakeClient{}, 0)
	deps.Embedders = brokenEmbedders{}
	_, _, err := NewBuilder(deps).Build(context.Background(), testSelection(), defaultCorpus(t))
	require.ErrorIs(t, err, domain.ErrCollaboratorFailure)
	assert.Contains(t, err.Error(), "model offline")
}

func TestBuild_LLMUnavailable(t *testing.T) {
	deps := testDeps(&fakeClient{}, 0)
	deps.LLMs = fakeLLMs{err: errors.New("unknown provider")}
	_, _, err := NewBuilder(deps).Build(context.Background(), testSelection(), defaultCorpus(t))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestQuery_AnswerAndSources(t *testing.T) {
	client := &fakeClient{answer: "Goroutines talk over channels."}
	engine := build(t, client, 0)

	res, err := engine.Query(context.Background(), "How do goroutines use channels?")
	require.NoError(t, err)

	assert.Equal(t, "Goroutines talk over channels.", res.Answer)
	require.NotEmpty(t, res.Sources)
	assert.LessOrEqual(t, len(res.Sources), 2)
	assert.Equal(t, "go.txt", res.Sources[0].Filename)
	assert.Equal(t, goText, res.Sources[0].TextPreview)
	require.NotNil(t, res.Sources[0].ChunkID)
	assert.Equal(t, 0, *res.Sources[0].ChunkID)

	require.Equal(t, 1, client.calls())
	assert.Contains(t, client.prompts[0], goText)
	assert.Contains(t, client.prompts[0], "How do goroutines use channels?")
}

func TestQuery_LexicalFallback(t *testing.T) {
	client := &fakeClient{answer: "ok"}
	engine := build(t, client, 0)

	// "up" is a stopword, so the TF-IDF query vector is all zeros.
	res, err := engine.Query(context.Background(), "Up?")
	require.NoError(t, err)
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, "db.txt", res.Sources[0].Filename)
}

func TestQuery_RejectsEmptyQuestion(t *testing.T) {
	engine := build(t, &fakeClient{}, 0)
	_, err := engine.Query(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQuery_LLMFailure(t *testing.T) {
	engine := build(t, &fakeClient{err: errors.New("connection refused")}, 0)
	_, err := engine.Query(context.Background(), "What is a goroutine?")
	assert.ErrorIs(t, err, domain.ErrCollaboratorFailure)
}

func TestQuery_CachesAnswers(t *testing.T) {
	client := &fakeClient{answer: "cached"}
	engine := build(t, client, time.Minute)

	first, err := engine.Query(context.Background(), "What is a goroutine?")
	require.NoError(t, err)
	second, err := engine.Query(context.Background(), " What is a goroutine? ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.calls())
}

func TestQuery_CacheDisabled(t *testing.T) {
	client := &fakeClient{answer: "fresh"}
	engine := build(t, client, 0)

	for i := 0; i < 2; i++ {
		_, err := engine.Query(context.Background(), "What is a goroutine?")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, client.calls())
}

func TestEngine_Close(t *testing.T) {
	engine := build(t, &fakeClient{answer: "x"}, time.Minute)

	require.NoError(t, engine.Close(context.Background()))
	require.NoError(t, engine.Close(context.Background()))

	_, err := engine.Query(context.Background(), "What is a goroutine?")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	var nilEngine *Engine
	_, err = nilEngine.Query(context.Background(), "anything")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestSources_DedupeAndPreview(t *testing.T) {
	long := strings.Repeat("é", 150)
	hits := []domain.SearchResult{
		{Chunk: domain.Chunk{Filename: "a.txt", ChunkID: 3, Text: long}, Score: 0.9},
		{Chunk: domain.Chunk{Filename: "a.txt", ChunkID: 1, Text: "second"}, Score: 0.8},
		{Chunk: domain.Chunk{Filename: "b.txt", ChunkID: 0, Text: "short"}, Score: 0.5},
	}

	got := sources(hits, 100)
	require.Len(t, got, 2)
	assert.Equal(t, "a.txt", got[0].Filename)
	assert.Equal(t, strings.Repeat("é", 100)+"...", got[0].TextPreview)
	assert.Equal(t, 3, *got[0].ChunkID)
	assert.InDelta(t, 0.9, *got[0].Score, 1e-9)
	assert.Equal(t, "b.txt", got[1].Filename)
	assert.Equal(t, "short", got[1].TextPreview)
}

func TestLexicalSearch(t *testing.T) {
	chunks := []domain.Chunk{
		{Filename: "a.txt", Text: "red apples and green pears"},
		{Filename: "b.txt", Text: "green tea"},
		{Filename: "c.txt", Text: "blue sky"},
	}
	got := lexicalSearch("green tea please", chunks, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b.txt", got[0].Chunk.Filename)
	assert.Equal(t, "a.txt", got[1].Chunk.Filename)
	assert.Greater(t, got[0].Score, got[1].Score)

	assert.Empty(t, lexicalSearch("anything", nil, 2))
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("Why?", []domain.SearchResult{
		{Chunk: domain.Chunk{Filename: "a.txt", Text: " first chunk "}},
		{Chunk: domain.Chunk{Filename: "b.txt", Text: "second chunk"}},
	})
	assert.Contains(t, prompt, "[1] a.txt\nfirst chunk\n")
	assert.Contains(t, prompt, "[2] b.txt\nsecond chunk\n")
	assert.Contains(t, prompt, "<user_question>\nWhy?\n</user_question>")
}
