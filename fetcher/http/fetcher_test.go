package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recall/fetcher"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/notes", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [{
			"id": "n1",
			"title": "first",
			"modified_at": "2024-05-01T12:00:00Z",
			"content": {"paragraphs": [{"rendered": "hello"}, {}]}
		}]}`))
	}))
	defer srv.Close()

	f := NewFetcher(fetcher.WithLocation(srv.URL+"/notes"), fetcher.WithToken("secret"))

	notes, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)

	n := notes[0]
	assert.Equal(t, "n1", n.Id)
	assert.True(t, n.ModifiedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	require.Len(t, n.Content.Paragraphs, 2)
	assert.Equal(t, "hello", *n.Content.Paragraphs[0].Rendered)
	assert.Nil(t, n.Content.Paragraphs[1].Rendered)
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFetcher(fetcher.WithLocation(srv.URL)).Fetch(context.Background())
	assert.Error(t, err)
}
