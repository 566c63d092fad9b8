package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recall/model"
)

type fakeService struct {
	memories []model.Memory
	neurons  []model.Neuron
	text     string
	err      error

	query string
	topk  int
}

func (s *fakeService) Sync(ctx context.Context) ([]model.Memory, error) {
	return s.memories, s.err
}

func (s *fakeService) ListMemories(ctx context.Context) ([]model.Memory, error) {
	return s.memories, s.err
}

func (s *fakeService) SearchNeurons(ctx context.Context, query string, topk int) ([]model.Neuron, error) {
	s.query, s.topk = query, topk
	return s.neurons, s.err
}

func (s *fakeService) SearchNeuronsAsText(ctx context.Context, query string, topk int) (string, error) {
	s.query, s.topk = query, topk
	return s.text, s.err
}

func (s *fakeService) Resume(ctx context.Context) ([]model.Memory, error) {
	return s.memories, s.err
}

func serve(t *testing.T, svc Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewRouter(svc).ServeHTTP(rec, req)
	return rec
}

func TestSearchNeurons(t *testing.T) {
	svc := &fakeService{neurons: []model.Neuron{
		{Id: "a", MemoryId: "m1", Content: "hello", Position: model.Position{Paragraph: 2}, Distance: 0.1, Score: 0.9, Embedding: []float32{1}},
	}}

	rec := serve(t, svc, http.MethodPost, "/api/v1/neurons/search", `{"query": "hi", "topk": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "hi", svc.query)
	assert.Equal(t, 3, svc.topk)

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "hello", body.Data[0]["content"])
	assert.Equal(t, "m1", body.Data[0]["memory_id"])
	assert.Equal(t, 0.9, body.Data[0]["score"])
	assert.Equal(t, map[string]any{"paragraph": float64(2)}, body.Data[0]["position"])
	assert.NotContains(t, body.Data[0], "embedding")
}

func TestSearchNeuronsDefaultsTopK(t *testing.T) {
	svc := &fakeService{}

	rec := serve(t, svc, http.MethodPost, "/api/v1/neurons/search", `{"query": ""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultTopK, svc.topk)
	assert.JSONEq(t, `{"data": []}`, rec.Body.String())
}

func TestSearchNeuronsAsText(t *testing.T) {
	svc := &fakeService{text: "a---\nb"}

	rec := serve(t, svc, http.MethodPost, "/api/v1/neurons/search.txt", `{"query": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a---\nb", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestBadJSON(t *testing.T) {
	rec := serve(t, &fakeService{}, http.MethodPost, "/api/v1/neurons/search", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestServiceError(t *testing.T) {
	svc := &fakeService{err: errors.New("provider down")}

	for _, tt := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/v1/memories/sync", ""},
		{http.MethodGet, "/api/v1/memories", ""},
		{http.MethodPost, "/api/v1/neurons/resume", ""},
		{http.MethodPost, "/api/v1/neurons/search", `{"query": "q"}`},
	} {
		rec := serve(t, svc, tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tt.path)
		assert.JSONEq(t, `{"error": "provider down"}`, rec.Body.String(), tt.path)
	}
}

func TestMemories(t *testing.T) {
	svc := &fakeService{memories: []model.Memory{{Id: "m1", BizId: "n1", MemoryType: model.MemoryTypeNote}}}

	rec := serve(t, svc, http.MethodPost, "/api/v1/memories/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"biz_id":"n1"`)

	rec = serve(t, svc, http.MethodGet, "/api/v1/memories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"memory_type":"NOTE"`)

	rec = serve(t, &fakeService{}, http.MethodPost, "/api/v1/neurons/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": []}`, rec.Body.String())

	rec = serve(t, svc, http.MethodGet, "/api/v1/memories/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(t, svc, http.MethodGet, "/api/v1/neurons/search", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(t, svc, http.MethodGet, "/api/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerAppliesMiddleware(t *testing.T) {
	var order []string

	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	s := NewServer(
		WithHandler(NewRouter(&fakeService{})),
		WithMiddleware(mark("outer"), mark("inner"), LogRequests),
	).(*httpServer)

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/memories", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
