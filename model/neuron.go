package model

import "time"

type EmbedModel string

const (
	EmbedModelOpenAITextEmbedding3Small EmbedModel = "OPENAI_TEXT_EMBEDDING_3_SMALL"
	EmbedModelGoogleTextEmbedding004    EmbedModel = "GOOGLE_TEXT_EMBEDDING_004"
)

// ProviderModel is the model name the provider API expects.
func (m EmbedModel) ProviderModel() string {
	switch m {
	case EmbedModelOpenAITextEmbedding3Small:
		return "text-embedding-3-small"
	case EmbedModelGoogleTextEmbedding004:
		return "text-embedding-004"
	}
	return ""
}

// Provider names the embedding backend that serves the model.
func (m EmbedModel) Provider() string {
	switch m {
	case EmbedModelOpenAITextEmbedding3Small:
		return "openai"
	case EmbedModelGoogleTextEmbedding004:
		return "google"
	}
	return ""
}

// ContextLimit is the maximum number of input tokens a single embedding
// request may carry for this model.
func (m EmbedModel) ContextLimit() int {
	switch m {
	case EmbedModelOpenAITextEmbedding3Small:
		return 8191
	case EmbedModelGoogleTextEmbedding004:
		return 2048
	}
	return 0
}

// ParseEmbedModel accepts either the enum tag or the provider model name.
func ParseEmbedModel(s string) (EmbedModel, bool) {
	for _, m := range []EmbedModel{EmbedModelOpenAITextEmbedding3Small, EmbedModelGoogleTextEmbedding004} {
		if s == string(m) || s == m.ProviderModel() {
			return m, true
		}
	}
	return "", false
}

type Position struct {
	Paragraph int `json:"paragraph"`
}

type Neuron struct {
	Id         string     `json:"id"`
	MemoryId   string     `json:"memory_id"`
	Content    string     `json:"content"`
	Embedding  []float32  `json:"-"`
	Position   Position   `json:"position"`
	EmbedModel EmbedModel `json:"embed_model"`
	CreatedAt  time.Time  `json:"created_at"`

	// set on query paths only
	Distance float64 `json:"distance,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

func (n Neuron) String() string {
	return n.Content
}

type IndexState string

const (
	IndexStatePending IndexState = "PENDING"
	IndexStateIndexed IndexState = "INDEXED"
)

type NeuronIndexLog struct {
	Id        string     `json:"id"`
	MemoryId  string     `json:"memory_id"`
	State     IndexState `json:"state"`
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
