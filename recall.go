package recall

import (
	"context"
	"strings"

	"github.com/w-h-a/recall/embedder"
	"github.com/w-h-a/recall/fetcher"
	"github.com/w-h-a/recall/internal/service/memory"
	"github.com/w-h-a/recall/internal/service/neuron"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/reranker"
	"github.com/w-h-a/recall/storer"
	"github.com/w-h-a/recall/tokenizer"
	"golang.org/x/sync/singleflight"
)

const syncKey = "sync"

type Recall struct {
	memory *memory.Service
	neuron *neuron.Service
	group  singleflight.Group
}

// Sync runs one cycle: pull modified notes into memories, then rebuild the
// neurons of every memory it touched. Concurrent callers share one cycle,
// which keeps running when the caller that started it goes away.
func (r *Recall) Sync(ctx context.Context) ([]model.Memory, error) {
	v, err, _ := r.group.Do(syncKey, func() (any, error) {
		ctx := context.WithoutCancel(ctx)

		memories, err := r.memory.SyncModified(ctx)
		if err != nil {
			return nil, err
		}

		if err := r.neuron.Index(ctx, memories); err != nil {
			return nil, err
		}

		return memories, nil
	})
	if err != nil {
		return nil, err
	}

	memories, _ := v.([]model.Memory)

	return memories, nil
}

func (r *Recall) ListMemories(ctx context.Context) ([]model.Memory, error) {
	return r.memory.ListAll(ctx)
}

func (r *Recall) SearchNeurons(ctx context.Context, query string, topk int) ([]model.Neuron, error) {
	return r.neuron.QuerySimilar(ctx, query, topk)
}

func (r *Recall) SearchNeuronsAsText(ctx context.Context, query string, topk int) (string, error) {
	neurons, err := r.neuron.QuerySimilar(ctx, query, topk)
	if err != nil {
		return "", err
	}

	contents := make([]string, 0, len(neurons))
	for _, n := range neurons {
		contents = append(contents, n.String())
	}

	return strings.Join(contents, "---\n"), nil
}

// Resume finishes indexing that an earlier cycle left PENDING.
func (r *Recall) Resume(ctx context.Context) ([]model.Memory, error) {
	return r.neuron.Resume(ctx)
}

func New(
	fetcher fetcher.Fetcher,
	storer storer.Storer,
	embedder embedder.Embedder,
	tokenizer tokenizer.Tokenizer,
	reranker reranker.Reranker,
	batchSize int,
) *Recall {
	memory := memory.New(
		fetcher,
		storer,
		batchSize,
	)

	neuron := neuron.New(
		storer,
		embedder,
		tokenizer,
		reranker,
		batchSize,
	)

	recall := &Recall{
		memory: memory,
		neuron: neuron,
	}

	return recall
}
