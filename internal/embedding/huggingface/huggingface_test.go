package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_FeatureExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/sentence-transformers/all-MiniLM-L6-v2/pipeline/feature-extraction", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

		var req featureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Options.WaitForModel)

		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{3, 4}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e, err := NewEmbedder(Config{
		Name:    "all-MiniLM-L6-v2",
		BaseURL: srv.URL + "/models",
		Model:   "sentence-transformers/all-MiniLM-L6-v2",
		APIKey:  "hf_test",
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	assert.Equal(t, 2, e.Dimension())
	assert.Equal(t, "all-MiniLM-L6-v2", e.Name())
}

func TestEmbedder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, err := NewEmbedder(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "401")
}
