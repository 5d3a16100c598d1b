package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

func TestStorage_Lifecycle(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/ragpipe_b1":
			var body map[string]map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, 3, body["vectors"]["size"])
			assert.Equal(t, "Cosine", body["vectors"]["distance"])
		case r.Method == http.MethodPut && r.URL.Path == "/collections/ragpipe_b1/points":
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Points, 1)
			assert.Len(t, body.Points[0].ID, 36)
		case r.Method == http.MethodPost && r.URL.Path == "/collections/ragpipe_b1/points/search":
			_, _ = w.Write([]byte(`{"result":[{"score":0.9,"payload":{"filename":"a.txt","chunk_id":2,"text":"hello","strategy":"fixed"}}]}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "ragpipe_b1"})
	require.NoError(t, s.Init(ctx, 3))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{Filename: "a.txt", ChunkID: 2, Text: "hello"}}, [][]float32{{1, 0, 0}}))

	res, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a.txt", res[0].Chunk.Filename)
	assert.Equal(t, 2, res[0].Chunk.ChunkID)
	assert.InDelta(t, 0.9, res[0].Score, 1e-9)

	assert.NoError(t, s.Clear(ctx), "missing collection is not an error")
	assert.Equal(t, []string{
		"PUT /collections/ragpipe_b1",
		"PUT /collections/ragpipe_b1/points",
		"POST /collections/ragpipe_b1/points/search",
		"DELETE /collections/ragpipe_b1",
	}, calls)
}

func TestStorage_PropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "c"})
	err := s.Init(context.Background(), 3)
	assert.ErrorContains(t, err, "500")
	assert.Error(t, s.Clear(context.Background()))
}
