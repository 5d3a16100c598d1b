package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/config"
	"ragpipe/internal/vectorstore/memory"
	"ragpipe/internal/vectorstore/qdrant"
)

func TestFactory_Memory(t *testing.T) {
	f := NewFactory(config.VectorStoreConfig{}, nil)
	assert.Equal(t, "memory", f.Kind())

	a, err := f.New("b1")
	require.NoError(t, err)
	b, err := f.New("b2")
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, a)
	assert.NotSame(t, a, b)
	assert.NoError(t, f.Close())
}

func TestFactory_QdrantCollectionPerBuild(t *testing.T) {
	f := NewFactory(config.VectorStoreConfig{
		Type:   "qdrant",
		Qdrant: &config.QdrantConfig{URL: "http://localhost:6333", CollectionPrefix: "docs"},
	}, nil)

	s, err := f.New("0b6e-41")
	require.NoError(t, err)
	q, ok := s.(*qdrant.Storage)
	require.True(t, ok)
	assert.Equal(t, "docs_0b6e41", q.Collection())
}

func TestFactory_Errors(t *testing.T) {
	_, err := NewFactory(config.VectorStoreConfig{Type: "qdrant"}, nil).New("b")
	assert.Error(t, err)

	_, err = NewFactory(config.VectorStoreConfig{Type: "pgvector"}, nil).New("b")
	assert.Error(t, err)

	t.Setenv("TEST_PG_DSN", "")
	_, err = NewFactory(config.VectorStoreConfig{
		Type:     "pgvector",
		Pgvector: &config.PgvectorConfig{DSNEnv: "TEST_PG_DSN"},
	}, nil).New("b")
	assert.ErrorContains(t, err, "empty DSN")

	_, err = NewFactory(config.VectorStoreConfig{Type: "faiss"}, nil).New("b")
	assert.ErrorContains(t, err, "unknown vector store")
}
