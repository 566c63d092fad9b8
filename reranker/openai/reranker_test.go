package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recall/reranker"
)

func TestRerankParsesAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "c1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "2, 0"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	r := NewReranker(reranker.WithApiKey("test"), reranker.WithBaseURL(srv.URL+"/v1"))

	results, err := r.Rerank(context.Background(), "q", []string{"A", "B", "C"}, 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Index)
	assert.Equal(t, 0, results[1].Index)
}

func TestRerankEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "c1", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	r := NewReranker(reranker.WithApiKey("test"), reranker.WithBaseURL(srv.URL+"/v1"))

	_, err := r.Rerank(context.Background(), "q", []string{"A"}, 1)
	assert.Error(t, err)
}
