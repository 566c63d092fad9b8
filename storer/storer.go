package storer

import (
	"context"

	"github.com/w-h-a/recall/model"
)

// Storer persists memories, neurons and their audit logs. Bulk writes are
// split into statements of at most batchSize rows.
type Storer interface {
	ListMemories(ctx context.Context) ([]model.Memory, error)
	ListMemoriesByIds(ctx context.Context, ids []string) ([]model.Memory, error)
	ListMemoriesByBizIds(ctx context.Context, memoryType model.MemoryType, bizIds []string) ([]model.Memory, error)
	CreateMemories(ctx context.Context, memories []model.Memory, batchSize int) error
	UpdateMemoryData(ctx context.Context, memories []model.Memory, batchSize int) error

	ListSyncLogsByBizIds(ctx context.Context, bizIds []string) ([]model.MemorySyncLog, error)
	CreateSyncLogs(ctx context.Context, logs []model.MemorySyncLog, batchSize int) error

	ListNeuronsByMemoryIds(ctx context.Context, memoryIds []string) ([]model.Neuron, error)
	ListNeuronsWithinDistance(ctx context.Context, embedding []float32, embedModel model.EmbedModel, distance float64) ([]model.Neuron, error)
	CreateNeurons(ctx context.Context, neurons []model.Neuron, batchSize int) error
	DeleteNeuronsByMemoryIds(ctx context.Context, memoryIds []string) error

	ListIndexLogsByMemoryIds(ctx context.Context, memoryIds []string) ([]model.NeuronIndexLog, error)
	ListIndexLogsByState(ctx context.Context, state model.IndexState) ([]model.NeuronIndexLog, error)
	CreateIndexLogs(ctx context.Context, logs []model.NeuronIndexLog, batchSize int) error
	UpdateIndexLogs(ctx context.Context, logs []model.NeuronIndexLog, batchSize int) error

	// Transact runs fn against a Storer whose writes are committed together
	// when fn returns nil and discarded otherwise.
	Transact(ctx context.Context, fn func(tx Storer) error) error
}

// Migrator is implemented by storers that can create their own schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}
