package neuron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/w-h-a/recall/embedder"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/tokenizer"
)

// Generator turns a memory into embedded neurons, one per indexable
// paragraph.
type Generator struct {
	embedder  embedder.Embedder
	tokenizer tokenizer.Tokenizer
	now       func() time.Time
}

func (g *Generator) Generate(ctx context.Context, memory model.Memory) ([]model.Neuron, error) {
	if memory.Data == nil || len(memory.Data.Content.Paragraphs) == 0 {
		return nil, nil
	}

	var texts []string
	var positions []int

	for i, p := range memory.Data.Content.Paragraphs {
		if !p.Indexable() {
			continue
		}
		texts = append(texts, *p.Rendered)
		positions = append(positions, i)
	}

	if len(texts) == 0 {
		return nil, nil
	}

	embedModel := g.embedder.Model()

	if limit := embedModel.ContextLimit(); limit > 0 {
		tokens := 0
		for _, text := range texts {
			n, err := g.tokenizer.Count(text)
			if err != nil {
				return nil, fmt.Errorf("count tokens: %w", err)
			}
			tokens += n
		}

		if tokens >= limit {
			slog.WarnContext(ctx, "memory exceeds embedding context, skipping", "memory_id", memory.Id, "tokens", tokens, "limit", limit)
			return nil, nil
		}
	}

	embeddings, err := g.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed memory %s: %w", memory.Id, err)
	}

	now := g.now().UTC().Truncate(time.Microsecond)

	neurons := make([]model.Neuron, 0, len(embeddings))

	for _, e := range embeddings {
		if e.Index < 0 || e.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range for %d inputs", e.Index, len(texts))
		}

		neurons = append(neurons, model.Neuron{
			Id:         uuid.NewString(),
			MemoryId:   memory.Id,
			Content:    texts[e.Index],
			Embedding:  e.Vector,
			Position:   model.Position{Paragraph: positions[e.Index]},
			EmbedModel: embedModel,
			CreatedAt:  now,
		})
	}

	return neurons, nil
}

func NewGenerator(
	embedder embedder.Embedder,
	tokenizer tokenizer.Tokenizer,
) *Generator {
	return &Generator{
		embedder:  embedder,
		tokenizer: tokenizer,
		now:       time.Now,
	}
}
