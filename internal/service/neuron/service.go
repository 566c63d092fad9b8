package neuron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/w-h-a/recall/embedder"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/reranker"
	"github.com/w-h-a/recall/storer"
	"github.com/w-h-a/recall/tokenizer"
)

const (
	defaultBatchSize = 20
	// MaxDistance is the widest cosine distance a candidate may have from the
	// query and still be handed to the reranker.
	MaxDistance = 0.80
)

type Service struct {
	storer    storer.Storer
	embedder  embedder.Embedder
	reranker  reranker.Reranker
	generator *Generator
	batchSize int
	now       func() time.Time
}

// Index rebuilds the neurons of memories. Index logs are written PENDING before
// any embedding work and flipped to INDEXED once the new neurons are stored.
func (s *Service) Index(ctx context.Context, memories []model.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	now := s.now().UTC().Truncate(time.Microsecond)

	logs := make([]model.NeuronIndexLog, 0, len(memories))
	memoryIds := make([]string, 0, len(memories))

	for _, m := range memories {
		memoryIds = append(memoryIds, m.Id)
		logs = append(logs, model.NeuronIndexLog{
			Id:        uuid.NewString(),
			MemoryId:  m.Id,
			State:     model.IndexStatePending,
			CreatedAt: now,
		})
	}

	if err := s.storer.CreateIndexLogs(ctx, logs, s.batchSize); err != nil {
		return fmt.Errorf("create index logs: %w", err)
	}

	var neurons []model.Neuron

	for _, m := range memories {
		generated, err := s.generator.Generate(ctx, m)
		if err != nil {
			return err
		}
		neurons = append(neurons, generated...)
	}

	err := s.storer.Transact(ctx, func(tx storer.Storer) error {
		if err := tx.DeleteNeuronsByMemoryIds(ctx, memoryIds); err != nil {
			return err
		}
		return tx.CreateNeurons(ctx, neurons, s.batchSize)
	})
	if err != nil {
		return fmt.Errorf("replace neurons: %w", err)
	}

	indexedAt := s.now().UTC().Truncate(time.Microsecond)
	for i := range logs {
		logs[i].State = model.IndexStateIndexed
		logs[i].IndexedAt = &indexedAt
	}

	if err := s.storer.UpdateIndexLogs(ctx, logs, s.batchSize); err != nil {
		return fmt.Errorf("update index logs: %w", err)
	}

	slog.InfoContext(ctx, "indexed memories", "memories", len(memories), "neurons", len(neurons))

	return nil
}

// Resume re-indexes every memory whose latest index attempt never finished.
func (s *Service) Resume(ctx context.Context) ([]model.Memory, error) {
	pending, err := s.storer.ListIndexLogsByState(ctx, model.IndexStatePending)
	if err != nil {
		return nil, fmt.Errorf("list pending index logs: %w", err)
	}

	if len(pending) == 0 {
		return nil, nil
	}

	seen := map[string]bool{}
	var candidates []string
	for _, log := range pending {
		if !seen[log.MemoryId] {
			seen[log.MemoryId] = true
			candidates = append(candidates, log.MemoryId)
		}
	}

	logs, err := s.storer.ListIndexLogsByMemoryIds(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("list index logs: %w", err)
	}

	latest := map[string]model.NeuronIndexLog{}
	for _, log := range logs {
		if current, ok := latest[log.MemoryId]; !ok || !log.CreatedAt.Before(current.CreatedAt) {
			latest[log.MemoryId] = log
		}
	}

	var memoryIds []string
	for _, id := range candidates {
		if latest[id].State == model.IndexStatePending {
			memoryIds = append(memoryIds, id)
		}
	}

	if len(memoryIds) == 0 {
		return nil, nil
	}

	memories, err := s.storer.ListMemoriesByIds(ctx, memoryIds)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	if err := s.Index(ctx, memories); err != nil {
		return nil, err
	}

	return memories, nil
}

// QuerySimilar embeds query, collects the neurons within MaxDistance and
// returns at most topk of them in reranked order.
func (s *Service) QuerySimilar(ctx context.Context, query string, topk int) ([]model.Neuron, error) {
	if len(strings.TrimSpace(query)) == 0 {
		return nil, nil
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if len(embeddings) == 0 {
		return nil, errors.New("no embedding for query")
	}

	candidates, err := s.storer.ListNeuronsWithinDistance(ctx, embeddings[0].Vector, s.embedder.Model(), MaxDistance)
	if err != nil {
		return nil, fmt.Errorf("list neurons: %w", err)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	return s.rerank(ctx, query, candidates, topk)
}

func (s *Service) rerank(ctx context.Context, query string, candidates []model.Neuron, topk int) ([]model.Neuron, error) {
	if topk <= 0 || topk > len(candidates) {
		topk = len(candidates)
	}

	documents := make([]string, 0, len(candidates))
	for _, n := range candidates {
		documents = append(documents, n.Content)
	}

	results, err := s.reranker.Rerank(ctx, query, documents, topk)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	ranked := make([]model.Neuron, 0, len(results))

	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank index %d out of range for %d candidates", r.Index, len(candidates))
		}

		n := candidates[r.Index]
		n.Score = r.Score
		ranked = append(ranked, n)

		if len(ranked) == topk {
			break
		}
	}

	return ranked, nil
}

func New(
	storer storer.Storer,
	embedder embedder.Embedder,
	tokenizer tokenizer.Tokenizer,
	reranker reranker.Reranker,
	batchSize int,
) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Service{
		storer:    storer,
		embedder:  embedder,
		reranker:  reranker,
		generator: NewGenerator(embedder, tokenizer),
		batchSize: batchSize,
		now:       time.Now,
	}
}
