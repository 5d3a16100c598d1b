package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_RequiresPrepare(t *testing.T) {
	e := NewEmbedder()
	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"hello"})
	assert.Error(t, err)
}

func TestEmbedder_PrepareRejectsEmptyCorpus(t *testing.T) {
	e := NewEmbedder()
	assert.Error(t, e.Prepare(context.Background(), nil))
	assert.Error(t, e.Prepare(context.Background(), []string{"the and of"}))
}

func TestEmbedder_VectorsAreNormalised(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, []string{"cats chase mice", "dogs chase cats", "birds sing songs"}))
	assert.Equal(t, 7, e.Dimension())

	vec, err := e.Embed(ctx, "cats chase")
	require.NoError(t, err)
	require.Len(t, vec, 7)

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedder_UnknownTermsGiveZeroVector(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, []string{"alpha beta"}))

	vec, err := e.Embed(ctx, "gamma delta")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestEmbedder_BatchMatchesSingle(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	corpus := []string{"rivers flow to the sea", "mountains rise above clouds"}
	require.NoError(t, e.Prepare(ctx, corpus))

	batch, err := e.EmbedBatch(ctx, corpus)
	require.NoError(t, err)
	for i, text := range corpus {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}
