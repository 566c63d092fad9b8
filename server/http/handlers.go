package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/w-h-a/recall/model"
)

const (
	apiPrefix   = "/api/v1"
	defaultTopK = 5
)

// Service is the part of the recall facade the routes expose.
type Service interface {
	Sync(ctx context.Context) ([]model.Memory, error)
	ListMemories(ctx context.Context) ([]model.Memory, error)
	SearchNeurons(ctx context.Context, query string, topk int) ([]model.Neuron, error)
	SearchNeuronsAsText(ctx context.Context, query string, topk int) (string, error)
	Resume(ctx context.Context) ([]model.Memory, error)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topk"`
}

type neuronResponse struct {
	Id       string         `json:"id"`
	MemoryId string         `json:"memory_id"`
	Content  string         `json:"content"`
	Position model.Position `json:"position"`
	Distance float64        `json:"distance"`
	Score    float64        `json:"score"`
}

type handler struct {
	service Service
}

func (h *handler) searchNeurons(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearch(w, r)
	if !ok {
		return
	}

	neurons, err := h.service.SearchNeurons(r.Context(), req.Query, req.TopK)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	data := make([]neuronResponse, 0, len(neurons))
	for _, n := range neurons {
		data = append(data, neuronResponse{
			Id:       n.Id,
			MemoryId: n.MemoryId,
			Content:  n.Content,
			Position: n.Position,
			Distance: n.Distance,
			Score:    n.Score,
		})
	}

	respondJSON(w, http.StatusOK, data)
}

func (h *handler) searchNeuronsAsText(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearch(w, r)
	if !ok {
		return
	}

	text, err := h.service.SearchNeuronsAsText(r.Context(), req.Query, req.TopK)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

func (h *handler) syncMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := h.service.Sync(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNil(memories))
}

func (h *handler) listMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := h.service.ListMemories(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNil(memories))
}

func (h *handler) resumeNeurons(w http.ResponseWriter, r *http.Request) {
	memories, err := h.service.Resume(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNil(memories))
}

func decodeSearch(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, err)
		return req, false
	}

	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	return req, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func nonNil(memories []model.Memory) []model.Memory {
	if memories == nil {
		return []model.Memory{}
	}
	return memories
}

// NewRouter mounts the recall routes under /api/v1.
func NewRouter(service Service) *mux.Router {
	h := &handler{service: service}

	// full paths on the root router so a method mismatch answers 405
	router := mux.NewRouter()

	router.HandleFunc(apiPrefix+"/neurons/search", h.searchNeurons).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/neurons/search.txt", h.searchNeuronsAsText).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/neurons/resume", h.resumeNeurons).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/memories/sync", h.syncMemories).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/memories", h.listMemories).Methods(http.MethodGet)

	return router
}
