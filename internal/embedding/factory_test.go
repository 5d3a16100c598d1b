package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
)

func TestFactory_New(t *testing.T) {
	f := NewFactory([]config.EmbedderConfig{
		{Name: "tfidf", Backend: "tfidf"},
		{Name: "nomic", Backend: "ollama", Model: "nomic-embed-text"},
		{Name: "MiniLM", Backend: "huggingface", Model: "sentence-transformers/all-MiniLM-L6-v2"},
		{Name: "broken", Backend: "word2vec"},
	})

	e, err := f.New("tfidf")
	require.NoError(t, err)
	assert.Equal(t, "tfidf", e.Name())

	other, err := f.New("tfidf")
	require.NoError(t, err)
	assert.NotSame(t, e, other)

	e, err = f.New("nomic")
	require.NoError(t, err)
	assert.Equal(t, "nomic", e.Name())

	e, err = f.New("MiniLM")
	require.NoError(t, err)
	assert.Equal(t, "MiniLM", e.Name())

	_, err = f.New("missing")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = f.New("broken")
	assert.ErrorContains(t, err, "unknown backend")
}
