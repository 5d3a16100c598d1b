package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/chunker"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
	"ragpipe/internal/ingest"
	"ragpipe/internal/llm"
	"ragpipe/internal/loader"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/vectorstore"
)

type echoClient struct{}

func (echoClient) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return "answer", nil
}

func (echoClient) Generate(context.Context, string, ...llm.Option) (string, error) {
	return "answer", nil
}

type switchableLLMs struct {
	mu  sync.Mutex
	err error
}

func (s *switchableLLMs) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *switchableLLMs) NewClient(string, string) (llm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return echoClient{}, nil
}

type fixture struct {
	svc  *Service
	llms *switchableLLMs
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	ing := ingest.New(ingest.Config{
		RawDir:        filepath.Join(root, "raw"),
		ProcessedDir:  filepath.Join(root, "documents"),
		DocumentTypes: []string{"txt", "md", "pdf"},
		MaxFileSizeMB: 1,
	}, nil)
	llms := &switchableLLMs{}
	builder := pipeline.NewBuilder(pipeline.Deps{
		Loader:    loader.New(nil),
		Chunker:   chunker.New(nil),
		Embedders: embedding.NewFactory([]config.EmbedderConfig{{Name: "tfidf", Backend: "tfidf"}}),
		Stores:    vectorstore.NewFactory(config.VectorStoreConfig{Type: "memory"}, nil),
		LLMs:      llms,
	})
	svc := New(Deps{
		Ingestor: ing,
		Builder:  builder,
		Options: domain.Options{
			Providers:          map[string][]string{"local": {"tiny", "large"}},
			Embedders:          []string{"tfidf"},
			ChunkingStrategies: chunker.Names(),
		},
	})
	return fixture{svc: svc, llms: llms}
}

func textFile(name, text string) ingest.File {
	return ingest.File{
		Name: name,
		Size: int64(len(text)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(text)), nil },
	}
}

func validSelection() domain.Selection {
	return domain.Selection{
		Provider:         "local",
		Model:            "tiny",
		Embedder:         "tfidf",
		ChunkingStrategy: "fixed",
		ChunkSize:        100,
		ChunkOverlap:     0,
	}
}

func (f fixture) initialized(t *testing.T, files ...ingest.File) {
	t.Helper()
	ctx := context.Background()
	if len(files) == 0 {
		files = []ingest.File{textFile("notes.txt", "Goroutines are cheap. Channels connect them.")}
	}
	_, err := f.svc.Upload(ctx, files)
	require.NoError(t, err)
	_, err = f.svc.Configure(validSelection())
	require.NoError(t, err)
	_, err = f.svc.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.StateInitialized, f.svc.Status().State)
}

func TestStatus_Initial(t *testing.T) {
	st := newFixture(t).svc.Status()
	assert.Equal(t, domain.StateUnconfigured, st.State)
	assert.Zero(t, st.FilesProcessed)
	assert.Nil(t, st.Configuration)
	assert.False(t, st.ReadyForChat)
}

func TestConfigure_StatusEchoesSelection(t *testing.T) {
	f := newFixture(t)
	for _, strategy := range chunker.Names() {
		sel := validSelection()
		sel.ChunkingStrategy = strategy
		sel.Model = "large"

		got, err := f.svc.Configure(sel)
		require.NoError(t, err)
		assert.Equal(t, sel, got)

		st := f.svc.Status()
		assert.Equal(t, domain.StateConfigured, st.State)
		require.NotNil(t, st.Configuration)
		assert.Equal(t, sel, *st.Configuration)
	}
}

func TestConfigure_AppliesDefaults(t *testing.T) {
	got, err := newFixture(t).svc.Configure(domain.Selection{Provider: "local", Model: "tiny", Embedder: "tfidf"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.ChunkingStrategy)
	assert.Equal(t, 800, got.ChunkSize)
	assert.Equal(t, 100, got.ChunkOverlap)
}

func TestConfigure_InvalidLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	sel := validSelection()
	sel.Model = "gpt-9"

	_, err := f.svc.Configure(sel)
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	assert.Equal(t, domain.StateUnconfigured, f.svc.Status().State)

	_, err = f.svc.Configure(validSelection())
	require.NoError(t, err)
	_, err = f.svc.Configure(sel)
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	st := f.svc.Status()
	assert.Equal(t, domain.StateConfigured, st.State)
	assert.Equal(t, "tiny", st.Configuration.Model)
}

func TestInitialize_BeforeConfigure(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Upload(context.Background(), []ingest.File{textFile("a.txt", "Some text.")})
	require.NoError(t, err)

	_, err = f.svc.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.Equal(t, domain.StateUnconfigured, f.svc.Status().State)
}

func TestInitialize_WithoutDocuments(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Configure(validSelection())
	require.NoError(t, err)

	_, err = f.svc.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.Equal(t, domain.StateConfigured, f.svc.Status().State)
}

func TestInitialize_Success(t *testing.T) {
	f := newFixture(t)
	f.initialized(t)

	st := f.svc.Status()
	assert.True(t, st.ReadyForChat)
	assert.Equal(t, 1, st.FilesProcessed)
	assert.Equal(t, []string{"notes.txt"}, st.Files)
	require.NotNil(t, st.LastBuild)
	assert.Equal(t, 1, st.LastBuild.Documents)
}

func TestInitialize_FailureDropsPreviousPipeline(t *testing.T) {
	f := newFixture(t)
	f.initialized(t)

	f.llms.fail(errors.New("provider offline"))
	_, err := f.svc.Initialize(context.Background())
	require.Error(t, err)

	st := f.svc.Status()
	assert.Equal(t, domain.StateConfigured, st.State)
	assert.Nil(t, st.LastBuild)
	_, err = f.svc.Query(context.Background(), "What are goroutines?")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestUpload_WhileInitializedReturnsToConfigured(t *testing.T) {
	f := newFixture(t)
	f.initialized(t)

	report, err := f.svc.Upload(context.Background(), []ingest.File{textFile("new.md", "A different corpus.")})
	require.NoError(t, err)
	assert.True(t, report.CorpusReplaced)

	st := f.svc.Status()
	assert.Equal(t, domain.StateConfigured, st.State)
	assert.False(t, st.ReadyForChat)
	require.NotNil(t, st.Configuration)
	assert.Equal(t, validSelection(), *st.Configuration)
	assert.Equal(t, []string{"new.md"}, st.Files)
}

func TestUpload_RejectedFilesKeepCorpusAndState(t *testing.T) {
	f := newFixture(t)
	f.initialized(t)

	report, err := f.svc.Upload(context.Background(), []ingest.File{textFile("virus.exe", "MZ")})
	require.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.False(t, report.CorpusReplaced)
	assert.Equal(t, 1, report.Failed)

	st := f.svc.Status()
	assert.Equal(t, domain.StateInitialized, st.State)
	assert.Equal(t, []string{"notes.txt"}, st.Files)
}

func TestUpload_NoFiles(t *testing.T) {
	_, err := newFixture(t).svc.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQuery_NotReady(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Query(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = f.svc.Configure(validSelection())
	require.NoError(t, err)
	_, err = f.svc.Query(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestQuery_ValidatesQuestion(t *testing.T) {
	f := newFixture(t)
	f.initialized(t)

	_, err := f.svc.Query(context.Background(), " \n ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Query(context.Background(), strings.Repeat("ü", 1001))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Query(context.Background(), strings.Repeat("ü", 1000))
	assert.NoError(t, err)
}

func TestQuery_DeduplicatesSources(t *testing.T) {
	f := newFixture(t)
	f.initialized(t,
		textFile("go.txt", strings.Repeat("goroutine channel. ", 16)),
		textFile("food.txt", "Tomato sauce needs basil."),
	)

	res, err := f.svc.Query(context.Background(), "goroutine")
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "go.txt", res.Sources[0].Filename)
}

func TestReset_FromInitialized(t *testing.T) {
	f := newFixture(t)
	f.initialized(t)

	require.NoError(t, f.svc.Reset(context.Background()))

	st := f.svc.Status()
	assert.Equal(t, domain.StateUnconfigured, st.State)
	assert.Zero(t, st.FilesProcessed)
	assert.Nil(t, st.Configuration)
	assert.False(t, st.ReadyForChat)

	_, err := f.svc.Query(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrNotReady)
	require.NoError(t, f.svc.Reset(context.Background()))
}

func TestClose_KeepsCorpusAndSelection(t *testing.T) {
	f := newFixture(t)
	f.initialized(t)

	f.svc.Close(context.Background())

	st := f.svc.Status()
	assert.Equal(t, domain.StateConfigured, st.State)
	assert.Equal(t, []string{"notes.txt"}, st.Files)
	require.NotNil(t, st.Configuration)
	_, err := f.svc.Query(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}
