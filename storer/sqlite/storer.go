package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/w-h-a/recall/model"
	"github.com/w-h-a/recall/storer"
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL that Migrate applies.
func Schema() string {
	return schema
}

// maxLookupIds keeps IN lists well below SQLITE_MAX_VARIABLE_NUMBER.
const maxLookupIds = 500

var DRIVER string

func init() {
	sqlite_vec.Auto()

	driver, err := otelsql.Register(
		"sqlite3",
		otelsql.TraceQueryWithoutArgs(),
		otelsql.TraceRowsClose(),
		otelsql.TraceRowsAffected(),
		otelsql.WithSystem(semconv.DBSystemSqlite),
	)
	if err != nil {
		detail := "failed to register sqlite storer with otel"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	DRIVER = driver
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqliteStorer struct {
	options storer.Options
	conn    *sql.DB
	q       querier
}

func (s *sqliteStorer) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStorer) ListMemories(ctx context.Context) ([]model.Memory, error) {
	query := `
		SELECT id, biz_id, memory_type, data, created_at, updated_at
		FROM memories
		ORDER BY created_at, id
	`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return scanMemories(rows)
}

func (s *sqliteStorer) ListMemoriesByIds(ctx context.Context, ids []string) ([]model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	memories, err := lookup(ids, func(chunk []string) ([]model.Memory, error) {
		query := `
			SELECT id, biz_id, memory_type, data, created_at, updated_at
			FROM memories
			WHERE id IN ` + in(len(chunk))

		rows, err := s.q.QueryContext(ctx, query, anys(chunk)...)
		if err != nil {
			return nil, err
		}

		return scanMemories(rows)
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(memories, compareMemories)

	return memories, nil
}

func (s *sqliteStorer) ListMemoriesByBizIds(ctx context.Context, memoryType model.MemoryType, bizIds []string) ([]model.Memory, error) {
	if len(bizIds) == 0 {
		return nil, nil
	}

	memories, err := lookup(bizIds, func(chunk []string) ([]model.Memory, error) {
		query := `
			SELECT id, biz_id, memory_type, data, created_at, updated_at
			FROM memories
			WHERE memory_type = ? AND biz_id IN ` + in(len(chunk))

		args := append([]any{string(memoryType)}, anys(chunk)...)

		rows, err := s.q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		return scanMemories(rows)
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(memories, compareMemories)

	return memories, nil
}

func (s *sqliteStorer) CreateMemories(ctx context.Context, memories []model.Memory, batchSize int) error {
	for _, batch := range storer.Batches(memories, batchSize) {
		args := make([]any, 0, len(batch)*6)
		for _, m := range batch {
			data, err := marshalData(m.Data)
			if err != nil {
				return err
			}
			args = append(args, m.Id, m.BizId, string(m.MemoryType), data, m.CreatedAt, m.UpdatedAt)
		}

		query := `INSERT INTO memories (id, biz_id, memory_type, data, created_at, updated_at) VALUES ` + values(len(batch), 6)

		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert memories: %w", err)
		}
	}

	return nil
}

func (s *sqliteStorer) UpdateMemoryData(ctx context.Context, memories []model.Memory, batchSize int) error {
	for _, batch := range storer.Batches(memories, batchSize) {
		for _, m := range batch {
			data, err := marshalData(m.Data)
			if err != nil {
				return err
			}

			if _, err := s.q.ExecContext(ctx, `UPDATE memories SET data = ?, updated_at = ? WHERE id = ?`, data, m.UpdatedAt, m.Id); err != nil {
				return fmt.Errorf("update memory %s: %w", m.Id, err)
			}
		}
	}

	return nil
}

func (s *sqliteStorer) ListSyncLogsByBizIds(ctx context.Context, bizIds []string) ([]model.MemorySyncLog, error) {
	if len(bizIds) == 0 {
		return nil, nil
	}

	logs, err := lookup(bizIds, func(chunk []string) ([]model.MemorySyncLog, error) {
		query := `
			SELECT id, biz_id, biz_modified_at, created_at
			FROM memory_sync_logs
			WHERE biz_id IN ` + in(len(chunk))

		rows, err := s.q.QueryContext(ctx, query, anys(chunk)...)
		if err != nil {
			return nil, err
		}

		return scanSyncLogs(rows)
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(logs, func(a, b model.MemorySyncLog) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return logs, nil
}

func scanSyncLogs(rows *sql.Rows) ([]model.MemorySyncLog, error) {
	defer rows.Close()

	var logs []model.MemorySyncLog

	for rows.Next() {
		var log model.MemorySyncLog
		if err := rows.Scan(&log.Id, &log.BizId, &log.BizModifiedAt, &log.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *sqliteStorer) CreateSyncLogs(ctx context.Context, logs []model.MemorySyncLog, batchSize int) error {
	for _, batch := range storer.Batches(logs, batchSize) {
		args := make([]any, 0, len(batch)*4)
		for _, log := range batch {
			args = append(args, log.Id, log.BizId, log.BizModifiedAt, log.CreatedAt)
		}

		query := `INSERT INTO memory_sync_logs (id, biz_id, biz_modified_at, created_at) VALUES ` + values(len(batch), 4)

		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert sync logs: %w", err)
		}
	}

	return nil
}

func (s *sqliteStorer) ListNeuronsByMemoryIds(ctx context.Context, memoryIds []string) ([]model.Neuron, error) {
	if len(memoryIds) == 0 {
		return nil, nil
	}

	neurons, err := lookup(memoryIds, func(chunk []string) ([]model.Neuron, error) {
		query := `
			SELECT id, memory_id, content, vec_to_json(embedding), paragraph, embed_model, created_at, 0.0
			FROM neurons
			WHERE memory_id IN ` + in(len(chunk))

		rows, err := s.q.QueryContext(ctx, query, anys(chunk)...)
		if err != nil {
			return nil, err
		}

		return scanNeurons(rows)
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(neurons, func(a, b model.Neuron) int {
		return cmp.Or(strings.Compare(a.MemoryId, b.MemoryId), cmp.Compare(a.Position.Paragraph, b.Position.Paragraph))
	})

	return neurons, nil
}

func (s *sqliteStorer) ListNeuronsWithinDistance(ctx context.Context, embedding []float32, embedModel model.EmbedModel, distance float64) ([]model.Neuron, error) {
	vec, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}

	// vec_distance_cosine rejects vectors of different dimensions, so the
	// model filter has to apply before the distance is computed.
	query := `
		SELECT id, memory_id, content, vec_to_json(embedding), paragraph, embed_model, created_at,
			vec_distance_cosine(embedding, ?) AS distance
		FROM neurons INDEXED BY neurons_embed_model_idx
		WHERE embed_model = ? AND distance <= ?
		ORDER BY distance, id
	`

	rows, err := s.q.QueryContext(ctx, query, vec, string(embedModel), distance)
	if err != nil {
		return nil, err
	}

	return scanNeurons(rows)
}

func (s *sqliteStorer) CreateNeurons(ctx context.Context, neurons []model.Neuron, batchSize int) error {
	for _, batch := range storer.Batches(neurons, batchSize) {
		args := make([]any, 0, len(batch)*7)
		for _, n := range batch {
			vec, err := sqlite_vec.SerializeFloat32(n.Embedding)
			if err != nil {
				return fmt.Errorf("serialize neuron %s embedding: %w", n.Id, err)
			}
			args = append(args, n.Id, n.MemoryId, n.Content, vec, n.Position.Paragraph, string(n.EmbedModel), n.CreatedAt)
		}

		query := `INSERT INTO neurons (id, memory_id, content, embedding, paragraph, embed_model, created_at) VALUES ` + values(len(batch), 7)

		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert neurons: %w", err)
		}
	}

	return nil
}

func (s *sqliteStorer) DeleteNeuronsByMemoryIds(ctx context.Context, memoryIds []string) error {
	if len(memoryIds) == 0 {
		return nil
	}

	for _, chunk := range storer.Batches(memoryIds, maxLookupIds) {
		if _, err := s.q.ExecContext(ctx, `DELETE FROM neurons WHERE memory_id IN `+in(len(chunk)), anys(chunk)...); err != nil {
			return fmt.Errorf("delete neurons: %w", err)
		}
	}

	return nil
}

func (s *sqliteStorer) ListIndexLogsByMemoryIds(ctx context.Context, memoryIds []string) ([]model.NeuronIndexLog, error) {
	if len(memoryIds) == 0 {
		return nil, nil
	}

	logs, err := lookup(memoryIds, func(chunk []string) ([]model.NeuronIndexLog, error) {
		query := `
			SELECT id, memory_id, state, indexed_at, created_at
			FROM neuron_index_logs
			WHERE memory_id IN ` + in(len(chunk))

		rows, err := s.q.QueryContext(ctx, query, anys(chunk)...)
		if err != nil {
			return nil, err
		}

		return scanIndexLogs(rows)
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(logs, func(a, b model.NeuronIndexLog) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return logs, nil
}

func (s *sqliteStorer) ListIndexLogsByState(ctx context.Context, state model.IndexState) ([]model.NeuronIndexLog, error) {
	query := `
		SELECT id, memory_id, state, indexed_at, created_at
		FROM neuron_index_logs
		WHERE state = ?
		ORDER BY created_at
	`

	rows, err := s.q.QueryContext(ctx, query, string(state))
	if err != nil {
		return nil, err
	}

	return scanIndexLogs(rows)
}

func (s *sqliteStorer) CreateIndexLogs(ctx context.Context, logs []model.NeuronIndexLog, batchSize int) error {
	for _, batch := range storer.Batches(logs, batchSize) {
		args := make([]any, 0, len(batch)*5)
		for _, log := range batch {
			args = append(args, log.Id, log.MemoryId, string(log.State), log.IndexedAt, log.CreatedAt)
		}

		query := `INSERT INTO neuron_index_logs (id, memory_id, state, indexed_at, created_at) VALUES ` + values(len(batch), 5)

		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert index logs: %w", err)
		}
	}

	return nil
}

func (s *sqliteStorer) UpdateIndexLogs(ctx context.Context, logs []model.NeuronIndexLog, batchSize int) error {
	for _, batch := range storer.Batches(logs, batchSize) {
		for _, log := range batch {
			if _, err := s.q.ExecContext(ctx, `UPDATE neuron_index_logs SET state = ?, indexed_at = ? WHERE id = ?`, string(log.State), log.IndexedAt, log.Id); err != nil {
				return fmt.Errorf("update index log %s: %w", log.Id, err)
			}
		}
	}

	return nil
}

func (s *sqliteStorer) Transact(ctx context.Context, fn func(tx storer.Storer) error) error {
	if s.conn == nil {
		return fn(s)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&sqliteStorer{options: s.options, q: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

func scanMemories(rows *sql.Rows) ([]model.Memory, error) {
	defer rows.Close()

	var memories []model.Memory

	for rows.Next() {
		var m model.Memory
		var memoryType string
		var data sql.NullString

		if err := rows.Scan(&m.Id, &m.BizId, &memoryType, &data, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}

		m.MemoryType = model.MemoryType(memoryType)

		if data.Valid && len(data.String) > 0 {
			var note model.Note
			if err := json.Unmarshal([]byte(data.String), &note); err != nil {
				return nil, fmt.Errorf("unmarshal memory %s data: %w", m.Id, err)
			}
			m.Data = &note
		}

		memories = append(memories, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return memories, nil
}

func scanNeurons(rows *sql.Rows) ([]model.Neuron, error) {
	defer rows.Close()

	var neurons []model.Neuron

	for rows.Next() {
		var n model.Neuron
		var embedding string
		var embedModel string

		if err := rows.Scan(&n.Id, &n.MemoryId, &n.Content, &embedding, &n.Position.Paragraph, &embedModel, &n.CreatedAt, &n.Distance); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(embedding), &n.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal neuron %s embedding: %w", n.Id, err)
		}

		n.EmbedModel = model.EmbedModel(embedModel)

		neurons = append(neurons, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return neurons, nil
}

func scanIndexLogs(rows *sql.Rows) ([]model.NeuronIndexLog, error) {
	defer rows.Close()

	var logs []model.NeuronIndexLog

	for rows.Next() {
		var log model.NeuronIndexLog
		var state string
		var indexedAt sql.NullTime

		if err := rows.Scan(&log.Id, &log.MemoryId, &state, &indexedAt, &log.CreatedAt); err != nil {
			return nil, err
		}

		log.State = model.IndexState(state)
		if indexedAt.Valid {
			t := indexedAt.Time
			log.IndexedAt = &t
		}

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func marshalData(note *model.Note) (any, error) {
	if note == nil {
		return nil, nil
	}

	bs, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("marshal memory data: %w", err)
	}

	return string(bs), nil
}

// lookup runs query over ids in chunks that stay under the bound sqlite puts
// on host parameters per statement.
func lookup[T any](ids []string, query func(chunk []string) ([]T, error)) ([]T, error) {
	var out []T

	for _, chunk := range storer.Batches(ids, maxLookupIds) {
		found, err := query(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	return out, nil
}

func compareMemories(a, b model.Memory) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.Id, b.Id))
}

func in(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func values(rows, cols int) string {
	row := in(cols)
	return strings.TrimSuffix(strings.Repeat(row+", ", rows), ", ")
}

func anys(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func NewStorer(opts ...storer.Option) storer.Storer {
	options := storer.NewOptions(opts...)

	s := &sqliteStorer{
		options: options,
	}

	// file path or sqlite dsn
	conn, err := sql.Open(DRIVER, s.options.Location)
	if err != nil {
		detail := "failed to connect with sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	// a single connection keeps in-memory databases and write locks coherent
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		detail := "failed to ping with sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		detail := "failed to enable foreign keys for sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	if err := otelsql.RecordStats(conn); err != nil {
		detail := "failed to initialize sqlite instrumentation for sqlite storer"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	s.conn = conn
	s.q = conn

	return s
}
