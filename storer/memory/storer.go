package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/storer"
)

type state struct {
	memories  map[string]model.Memory
	syncLogs  []model.MemorySyncLog
	neurons   map[string]model.Neuron
	indexLogs []model.NeuronIndexLog
}

func (s *state) clone() *state {
	cpy := &state{
		memories:  make(map[string]model.Memory, len(s.memories)),
		syncLogs:  slices.Clone(s.syncLogs),
		neurons:   make(map[string]model.Neuron, len(s.neurons)),
		indexLogs: slices.Clone(s.indexLogs),
	}
	for id, m := range s.memories {
		cpy.memories[id] = m
	}
	for id, n := range s.neurons {
		cpy.neurons[id] = n
	}
	return cpy
}

type memoryStorer struct {
	options storer.Options
	state   *state
	mtx     sync.RWMutex
	txMtx   sync.Mutex
}

func (s *memoryStorer) ListMemories(ctx context.Context) ([]model.Memory, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	memories := make([]model.Memory, 0, len(s.state.memories))
	for _, m := range s.state.memories {
		memories = append(memories, cloneMemory(m))
	}

	sortMemories(memories)

	return memories, nil
}

func (s *memoryStorer) ListMemoriesByIds(ctx context.Context, ids []string) ([]model.Memory, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var memories []model.Memory
	for _, id := range ids {
		if m, ok := s.state.memories[id]; ok {
			memories = append(memories, cloneMemory(m))
		}
	}

	sortMemories(memories)

	return memories, nil
}

func (s *memoryStorer) ListMemoriesByBizIds(ctx context.Context, memoryType model.MemoryType, bizIds []string) ([]model.Memory, error) {
	if len(bizIds) == 0 {
		return nil, nil
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var memories []model.Memory
	for _, m := range s.state.memories {
		if m.MemoryType == memoryType && slices.Contains(bizIds, m.BizId) {
			memories = append(memories, cloneMemory(m))
		}
	}

	sortMemories(memories)

	return memories, nil
}

func (s *memoryStorer) CreateMemories(ctx context.Context, memories []model.Memory, batchSize int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, m := range memories {
		s.state.memories[m.Id] = cloneMemory(m)
	}

	return nil
}

func (s *memoryStorer) UpdateMemoryData(ctx context.Context, memories []model.Memory, batchSize int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, m := range memories {
		existing, ok := s.state.memories[m.Id]
		if !ok {
			continue
		}
		existing.Data = cloneNote(m.Data)
		existing.UpdatedAt = m.UpdatedAt
		s.state.memories[m.Id] = existing
	}

	return nil
}

func (s *memoryStorer) ListSyncLogsByBizIds(ctx context.Context, bizIds []string) ([]model.MemorySyncLog, error) {
	if len(bizIds) == 0 {
		return nil, nil
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var logs []model.MemorySyncLog
	for _, log := range s.state.syncLogs {
		if slices.Contains(bizIds, log.BizId) {
			logs = append(logs, log)
		}
	}

	return logs, nil
}

func (s *memoryStorer) CreateSyncLogs(ctx context.Context, logs []model.MemorySyncLog, batchSize int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.state.syncLogs = append(s.state.syncLogs, logs...)

	return nil
}

func (s *memoryStorer) ListNeuronsByMemoryIds(ctx context.Context, memoryIds []string) ([]model.Neuron, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var neurons []model.Neuron
	for _, n := range s.state.neurons {
		if slices.Contains(memoryIds, n.MemoryId) {
			neurons = append(neurons, n)
		}
	}

	sort.Slice(neurons, func(i, j int) bool {
		if neurons[i].MemoryId != neurons[j].MemoryId {
			return neurons[i].MemoryId < neurons[j].MemoryId
		}
		return neurons[i].Position.Paragraph < neurons[j].Position.Paragraph
	})

	return neurons, nil
}

func (s *memoryStorer) ListNeuronsWithinDistance(ctx context.Context, embedding []float32, embedModel model.EmbedModel, distance float64) ([]model.Neuron, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var candidates []model.Neuron
	for _, n := range s.state.neurons {
		if n.EmbedModel != embedModel {
			continue
		}
		d := storer.CosineDistance(embedding, n.Embedding)
		if d > distance {
			continue
		}
		n.Distance = d
		candidates = append(candidates, n)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Id < candidates[j].Id
	})

	return candidates, nil
}

func (s *memoryStorer) CreateNeurons(ctx context.Context, neurons []model.Neuron, batchSize int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, n := range neurons {
		n.Embedding = slices.Clone(n.Embedding)
		s.state.neurons[n.Id] = n
	}

	return nil
}

func (s *memoryStorer) DeleteNeuronsByMemoryIds(ctx context.Context, memoryIds []string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for id, n := range s.state.neurons {
		if slices.Contains(memoryIds, n.MemoryId) {
			delete(s.state.neurons, id)
		}
	}

	return nil
}

func (s *memoryStorer) ListIndexLogsByMemoryIds(ctx context.Context, memoryIds []string) ([]model.NeuronIndexLog, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var logs []model.NeuronIndexLog
	for _, log := range s.state.indexLogs {
		if slices.Contains(memoryIds, log.MemoryId) {
			logs = append(logs, log)
		}
	}

	return logs, nil
}

func (s *memoryStorer) ListIndexLogsByState(ctx context.Context, indexState model.IndexState) ([]model.NeuronIndexLog, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var logs []model.NeuronIndexLog
	for _, log := range s.state.indexLogs {
		if log.State == indexState {
			logs = append(logs, log)
		}
	}

	return logs, nil
}

func (s *memoryStorer) CreateIndexLogs(ctx context.Context, logs []model.NeuronIndexLog, batchSize int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.state.indexLogs = append(s.state.indexLogs, logs...)

	return nil
}

func (s *memoryStorer) UpdateIndexLogs(ctx context.Context, logs []model.NeuronIndexLog, batchSize int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	byId := make(map[string]model.NeuronIndexLog, len(logs))
	for _, log := range logs {
		byId[log.Id] = log
	}

	for i, existing := range s.state.indexLogs {
		if log, ok := byId[existing.Id]; ok {
			s.state.indexLogs[i].State = log.State
			s.state.indexLogs[i].IndexedAt = log.IndexedAt
		}
	}

	return nil
}

// Transact serializes transactions and restores the previous state if fn
// fails. Writes made outside a transaction while one is running are lost on
// rollback.
func (s *memoryStorer) Transact(ctx context.Context, fn func(tx storer.Storer) error) error {
	s.txMtx.Lock()
	defer s.txMtx.Unlock()

	s.mtx.RLock()
	snapshot := s.state.clone()
	s.mtx.RUnlock()

	if err := fn(s); err != nil {
		s.mtx.Lock()
		s.state = snapshot
		s.mtx.Unlock()
		return err
	}

	return nil
}

func cloneMemory(m model.Memory) model.Memory {
	m.Data = cloneNote(m.Data)
	return m
}

func cloneNote(n *model.Note) *model.Note {
	if n == nil {
		return nil
	}
	cpy := *n
	cpy.Content.Paragraphs = slices.Clone(n.Content.Paragraphs)
	return &cpy
}

func sortMemories(memories []model.Memory) {
	sort.Slice(memories, func(i, j int) bool {
		if !memories[i].CreatedAt.Equal(memories[j].CreatedAt) {
			return memories[i].CreatedAt.Before(memories[j].CreatedAt)
		}
		return memories[i].Id < memories[j].Id
	})
}

func NewStorer(opts ...storer.Option) storer.Storer {
	options := storer.NewOptions(opts...)

	s := &memoryStorer{
		options: options,
		state: &state{
			memories: map[string]model.Memory{},
			neurons:  map[string]model.Neuron{},
		},
		mtx: sync.RWMutex{},
	}

	return s
}
