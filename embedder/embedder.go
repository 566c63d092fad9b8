package embedder

import (
	"context"

	"github.com/w-h-a/recall/model"
)

// Embedding is one vector of a batched embedding call. Index points back into
// the inputs passed to Embed.
type Embedding struct {
	Index  int
	Vector []float32
}

type Embedder interface {
	Model() model.EmbedModel
	Embed(ctx context.Context, inputs []string) ([]Embedding, error)
}
