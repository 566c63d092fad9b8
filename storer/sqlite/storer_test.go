package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/storer"
)

func newTestStorer(t *testing.T) storer.Storer {
	t.Helper()

	s := NewStorer(storer.WithLocation(filepath.Join(t.TempDir(), "recall.db")))
	require.NoError(t, s.(storer.Migrator).Migrate(context.Background()))

	return s
}

func TestMemories(t *testing.T) {
	ctx := context.Background()
	s := newTestStorer(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	note := &model.Note{
		Id:         "n1",
		Title:      "first",
		ModifiedAt: now,
		Content:    model.Content{Paragraphs: []model.Paragraph{model.NewParagraph("hello"), {}}},
	}

	require.NoError(t, s.CreateMemories(ctx, []model.Memory{
		{Id: "m1", BizId: "n1", MemoryType: model.MemoryTypeNote, Data: note, CreatedAt: now, UpdatedAt: now},
		{Id: "m2", BizId: "n2", MemoryType: model.MemoryTypeNote, CreatedAt: now.Add(time.Second), UpdatedAt: now},
	}, 1))

	all, err := s.ListMemories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "m1", all[0].Id)
	require.NotNil(t, all[0].Data)
	assert.Equal(t, "first", all[0].Data.Title)
	require.Len(t, all[0].Data.Content.Paragraphs, 2)
	assert.Nil(t, all[0].Data.Content.Paragraphs[1].Rendered)
	assert.Nil(t, all[1].Data)

	updated := all[0]
	updated.Data = &model.Note{Id: "n1", Title: "second", ModifiedAt: now.Add(time.Hour)}
	updated.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, s.UpdateMemoryData(ctx, []model.Memory{updated}, 20))

	got, err := s.ListMemoriesByBizIds(ctx, model.MemoryTypeNote, []string{"n1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Data.Title)
	assert.True(t, got[0].UpdatedAt.Equal(now.Add(time.Hour)))

	byIds, err := s.ListMemoriesByIds(ctx, []string{"m2"})
	require.NoError(t, err)
	require.Len(t, byIds, 1)
	assert.Equal(t, "n2", byIds[0].BizId)
}

func TestNeuronsWithinDistance(t *testing.T) {
	ctx := context.Background()
	s := newTestStorer(t)

	now := time.Now().UTC()

	require.NoError(t, s.CreateMemories(ctx, []model.Memory{
		{Id: "m1", BizId: "n1", MemoryType: model.MemoryTypeNote, CreatedAt: now, UpdatedAt: now},
		{Id: "m2", BizId: "n2", MemoryType: model.MemoryTypeNote, CreatedAt: now, UpdatedAt: now},
	}, 20))

	require.NoError(t, s.CreateNeurons(ctx, []model.Neuron{
		{Id: "a", MemoryId: "m1", Content: "a", Embedding: []float32{1, 0}, Position: model.Position{Paragraph: 0}, EmbedModel: model.EmbedModelOpenAITextEmbedding3Small, CreatedAt: now},
		{Id: "b", MemoryId: "m1", Content: "b", Embedding: []float32{1, 1}, Position: model.Position{Paragraph: 1}, EmbedModel: model.EmbedModelOpenAITextEmbedding3Small, CreatedAt: now},
		{Id: "c", MemoryId: "m2", Content: "c", Embedding: []float32{-1, 0}, Position: model.Position{Paragraph: 0}, EmbedModel: model.EmbedModelOpenAITextEmbedding3Small, CreatedAt: now},
		{Id: "d", MemoryId: "m2", Content: "d", Embedding: []float32{1, 0, 0}, Position: model.Position{Paragraph: 1}, EmbedModel: model.EmbedModelGoogleTextEmbedding004, CreatedAt: now},
	}, 3))

	neurons, err := s.ListNeuronsWithinDistance(ctx, []float32{1, 0}, model.EmbedModelOpenAITextEmbedding3Small, 0.8)
	require.NoError(t, err)
	require.Len(t, neurons, 2)
	assert.Equal(t, "a", neurons[0].Id)
	assert.Equal(t, "b", neurons[1].Id)
	assert.InDelta(t, 0.0, neurons[0].Distance, 1e-6)
	assert.Equal(t, []float32{1, 1}, neurons[1].Embedding)

	require.NoError(t, s.DeleteNeuronsByMemoryIds(ctx, []string{"m1"}))

	remaining, err := s.ListNeuronsByMemoryIds(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "c", remaining[0].Id)
	assert.Equal(t, 1, remaining[1].Position.Paragraph)
}

func TestIndexLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorer(t)

	now := time.Now().UTC()

	logs := []model.NeuronIndexLog{
		{Id: "l1", MemoryId: "m1", State: model.IndexStatePending, CreatedAt: now},
		{Id: "l2", MemoryId: "m2", State: model.IndexStatePending, CreatedAt: now.Add(time.Second)},
	}
	require.NoError(t, s.CreateIndexLogs(ctx, logs, 20))

	indexedAt := now.Add(time.Minute)
	logs[0].State = model.IndexStateIndexed
	logs[0].IndexedAt = &indexedAt
	require.NoError(t, s.UpdateIndexLogs(ctx, logs[:1], 20))

	pending, err := s.ListIndexLogsByState(ctx, model.IndexStatePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "l2", pending[0].Id)
	assert.Nil(t, pending[0].IndexedAt)

	byMemory, err := s.ListIndexLogsByMemoryIds(ctx, []string{"m1"})
	require.NoError(t, err)
	require.Len(t, byMemory, 1)
	assert.Equal(t, model.IndexStateIndexed, byMemory[0].State)
	require.NotNil(t, byMemory[0].IndexedAt)
	assert.True(t, byMemory[0].IndexedAt.Equal(indexedAt))
}

func TestTransactRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStorer(t)

	boom := errors.New("boom")
	now := time.Now().UTC()

	err := s.Transact(ctx, func(tx storer.Storer) error {
		if err := tx.CreateSyncLogs(ctx, []model.MemorySyncLog{{Id: "s1", BizId: "n1", BizModifiedAt: now, CreatedAt: now}}, 20); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	logs, err := s.ListSyncLogsByBizIds(ctx, []string{"n1"})
	require.NoError(t, err)
	assert.Empty(t, logs)

	err = s.Transact(ctx, func(tx storer.Storer) error {
		return tx.CreateSyncLogs(ctx, []model.MemorySyncLog{{Id: "s1", BizId: "n1", BizModifiedAt: now, CreatedAt: now}}, 20)
	})
	require.NoError(t, err)

	logs, err = s.ListSyncLogsByBizIds(ctx, []string{"n1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].BizModifiedAt.Equal(now))
}

func TestLookupsBeyondVariableLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStorer(t)

	ids := make([]string, 33000)
	for i := range ids {
		ids[i] = fmt.Sprintf("n%05d", i)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	picked := []int{0, 499, 500, 17000, 32999}

	var memories []model.Memory
	var syncLogs []model.MemorySyncLog
	var neurons []model.Neuron
	var indexLogs []model.NeuronIndexLog

	for i, at := range picked {
		created := now.Add(time.Duration(i) * time.Second)
		memories = append(memories, model.Memory{Id: ids[at], BizId: ids[at], MemoryType: model.MemoryTypeNote, CreatedAt: created, UpdatedAt: created})
		syncLogs = append(syncLogs, model.MemorySyncLog{Id: fmt.Sprintf("s%d", i), BizId: ids[at], BizModifiedAt: created, CreatedAt: created})
		neurons = append(neurons, model.Neuron{Id: fmt.Sprintf("x%d", i), MemoryId: ids[at], Content: "c", Embedding: []float32{1, 0}, EmbedModel: model.EmbedModelOpenAITextEmbedding3Small, CreatedAt: created})
		indexLogs = append(indexLogs, model.NeuronIndexLog{Id: fmt.Sprintf("l%d", i), MemoryId: ids[at], State: model.IndexStatePending, CreatedAt: created})
	}

	require.NoError(t, s.CreateMemories(ctx, memories, 20))
	require.NoError(t, s.CreateSyncLogs(ctx, syncLogs, 20))
	require.NoError(t, s.CreateNeurons(ctx, neurons, 20))
	require.NoError(t, s.CreateIndexLogs(ctx, indexLogs, 20))

	logs, err := s.ListSyncLogsByBizIds(ctx, ids)
	require.NoError(t, err)
	require.Len(t, logs, len(picked))
	for i, log := range logs {
		assert.Equal(t, fmt.Sprintf("s%d", i), log.Id)
	}

	byBizId, err := s.ListMemoriesByBizIds(ctx, model.MemoryTypeNote, ids)
	require.NoError(t, err)
	require.Len(t, byBizId, len(picked))
	assert.Equal(t, ids[0], byBizId[0].Id)
	assert.Equal(t, ids[32999], byBizId[len(picked)-1].Id)

	byId, err := s.ListMemoriesByIds(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, byId, len(picked))

	found, err := s.ListNeuronsByMemoryIds(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, found, len(picked))

	attempts, err := s.ListIndexLogsByMemoryIds(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, attempts, len(picked))

	require.NoError(t, s.DeleteNeuronsByMemoryIds(ctx, ids))

	found, err = s.ListNeuronsByMemoryIds(ctx, ids)
	require.NoError(t, err)
	assert.Empty(t, found)
}
