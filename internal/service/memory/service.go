package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/w-h-a/recall/fetcher"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/storer"
)

const defaultBatchSize = 20

type Service struct {
	fetcher   fetcher.Fetcher
	storer    storer.Storer
	batchSize int
	now       func() time.Time
}

// SyncModified pulls the full note snapshot and turns new or changed notes
// into memory writes. It returns the memories it created or updated.
func (s *Service) SyncModified(ctx context.Context) ([]model.Memory, error) {
	notes, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch notes: %w", err)
	}

	notes = latestNotes(notes)
	if len(notes) == 0 {
		return nil, nil
	}

	bizIds := make([]string, 0, len(notes))
	for _, note := range notes {
		bizIds = append(bizIds, note.Id)
	}

	logs, err := s.storer.ListSyncLogsByBizIds(ctx, bizIds)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}

	watermarks := Watermarks(logs)

	var fresh, changed []model.Note
	unchanged := 0

	for _, note := range notes {
		watermark, ok := watermarks[note.Id]
		switch {
		case !ok:
			fresh = append(fresh, note)
		case note.ModifiedAt.After(watermark):
			changed = append(changed, note)
		default:
			unchanged++
		}
	}

	if len(fresh) == 0 && len(changed) == 0 {
		slog.InfoContext(ctx, "memories up to date", "unchanged", unchanged)
		return nil, nil
	}

	touchedIds := make([]string, 0, len(fresh)+len(changed))
	for _, note := range fresh {
		touchedIds = append(touchedIds, note.Id)
	}
	for _, note := range changed {
		touchedIds = append(touchedIds, note.Id)
	}

	existing, err := s.storer.ListMemoriesByBizIds(ctx, model.MemoryTypeNote, touchedIds)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	byBizId := make(map[string]model.Memory, len(existing))
	for _, m := range existing {
		byBizId[m.BizId] = m
	}

	now := s.now().UTC().Truncate(time.Microsecond)

	var created, updated []model.Memory

	for _, note := range fresh {
		// a memory whose sync log went missing is refreshed instead of duplicated
		if m, ok := byBizId[note.Id]; ok {
			updated = append(updated, withData(m, note, now))
			continue
		}

		n := note
		created = append(created, model.Memory{
			Id:         uuid.NewString(),
			BizId:      note.Id,
			MemoryType: model.MemoryTypeNote,
			Data:       &n,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	for _, note := range changed {
		m, ok := byBizId[note.Id]
		if !ok {
			slog.DebugContext(ctx, "changed note has no memory", "biz_id", note.Id)
			continue
		}
		updated = append(updated, withData(m, note, now))
	}

	touched := make([]model.Memory, 0, len(created)+len(updated))
	touched = append(touched, created...)
	touched = append(touched, updated...)

	syncLogs := make([]model.MemorySyncLog, 0, len(touched))
	for _, m := range touched {
		syncLogs = append(syncLogs, model.MemorySyncLog{
			Id:            uuid.NewString(),
			BizId:         m.BizId,
			BizModifiedAt: m.Data.ModifiedAt,
			CreatedAt:     now,
		})
	}

	err = s.storer.Transact(ctx, func(tx storer.Storer) error {
		if err := tx.CreateMemories(ctx, created, s.batchSize); err != nil {
			return err
		}
		if err := tx.UpdateMemoryData(ctx, updated, s.batchSize); err != nil {
			return err
		}
		return tx.CreateSyncLogs(ctx, syncLogs, s.batchSize)
	})
	if err != nil {
		return nil, fmt.Errorf("persist memories: %w", err)
	}

	slog.InfoContext(ctx, "synced memories", "created", len(created), "updated", len(updated), "unchanged", unchanged)

	return touched, nil
}

func (s *Service) ListAll(ctx context.Context) ([]model.Memory, error) {
	return s.storer.ListMemories(ctx)
}

// Watermarks reduces sync logs to the latest synced modification time per
// biz id.
func Watermarks(logs []model.MemorySyncLog) map[string]time.Time {
	watermarks := make(map[string]time.Time, len(logs))
	for _, log := range logs {
		if current, ok := watermarks[log.BizId]; !ok || log.BizModifiedAt.After(current) {
			watermarks[log.BizId] = log.BizModifiedAt
		}
	}
	return watermarks
}

// latestNotes drops repeated ids, keeping the most recently modified copy, and
// truncates modification times to the precision the stores keep.
func latestNotes(notes []model.Note) []model.Note {
	index := make(map[string]int, len(notes))
	out := make([]model.Note, 0, len(notes))

	for _, note := range notes {
		note.ModifiedAt = note.ModifiedAt.UTC().Truncate(time.Microsecond)

		if i, ok := index[note.Id]; ok {
			if note.ModifiedAt.After(out[i].ModifiedAt) {
				out[i] = note
			}
			continue
		}

		index[note.Id] = len(out)
		out = append(out, note)
	}

	return out
}

func withData(m model.Memory, note model.Note, now time.Time) model.Memory {
	n := note
	m.Data = &n
	m.UpdatedAt = now
	return m
}

func New(
	fetcher fetcher.Fetcher,
	storer storer.Storer,
	batchSize int,
) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Service{
		fetcher:   fetcher,
		storer:    storer,
		batchSize: batchSize,
		now:       time.Now,
	}
}
