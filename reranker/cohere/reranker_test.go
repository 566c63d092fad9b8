package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recall/reranker"
)

func TestRerank(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "r1", "results": [{"index": 2, "relevance_score": 0.9}, {"index": 0, "relevance_score": 0.4}]}`))
	}))
	defer srv.Close()

	r := NewReranker(reranker.WithApiKey("test"), reranker.WithBaseURL(srv.URL))

	results, err := r.Rerank(context.Background(), "q", []string{"A", "B", "C"}, 2)
	require.NoError(t, err)

	assert.Equal(t, "q", got["query"])
	assert.Equal(t, defaultModel, got["model"])
	assert.EqualValues(t, 2, got["top_n"])

	require.Len(t, results, 2)
	assert.Equal(t, reranker.Result{Index: 2, Score: 0.9}, results[0])
	assert.Equal(t, reranker.Result{Index: 0, Score: 0.4}, results[1])
}

func TestRerankWithoutDocuments(t *testing.T) {
	r := NewReranker(reranker.WithApiKey("test"), reranker.WithBaseURL("http://127.0.0.1:0"))

	results, err := r.Rerank(context.Background(), "q", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}
