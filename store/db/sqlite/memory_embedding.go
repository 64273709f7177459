package sqlite

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/store"
)

// Vectors are stored as little-endian float32 BLOBs: 4 bytes per
// dimension, no header. The chromem index holds the searchable copy;
// these rows are the durable source used for rebuilds.

func encodeVector(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, errors.Wrap(err, "failed to encode vector")
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil, errors.Wrap(err, "failed to decode vector")
	}
	return vector, nil
}

func (d *DB) UpsertMemoryEmbedding(ctx context.Context, upsert *store.MemoryEmbedding) (*store.MemoryEmbedding, error) {
	blob, err := encodeVector(upsert.Embedding)
	if err != nil {
		return nil, err
	}

	stmt := `INSERT INTO memory_embedding (memory_id, model, dims, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (memory_id) DO UPDATE SET
			model = EXCLUDED.model,
			dims = EXCLUDED.dims,
			embedding = EXCLUDED.embedding,
			updated_ts = strftime('%s', 'now')
		RETURNING created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.MemoryID, upsert.Model, upsert.Dims, blob,
	).Scan(&upsert.CreatedTs, &upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert memory embedding")
	}

	return upsert, nil
}

func (d *DB) ListMemoryEmbeddings(ctx context.Context, find *store.FindMemoryEmbedding) ([]*store.MemoryEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.MemoryID; v != nil {
		where, args = append(where, "memory_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Model; v != nil {
		where, args = append(where, "model = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT memory_id, model, dims, embedding, created_ts, updated_ts
		FROM memory_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY memory_id ASC`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query memory embeddings")
	}
	defer rows.Close()

	list := []*store.MemoryEmbedding{}
	for rows.Next() {
		var embedding store.MemoryEmbedding
		var blob []byte
		if err := rows.Scan(
			&embedding.MemoryID,
			&embedding.Model,
			&embedding.Dims,
			&blob,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory embedding")
		}
		vector, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		embedding.Embedding = vector
		list = append(list, &embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// DeleteMemoryEmbedding removes the mirror row. Deleting an absent row
// succeeds.
func (d *DB) DeleteMemoryEmbedding(ctx context.Context, memoryID int64) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM memory_embedding WHERE memory_id = ?", memoryID); err != nil {
		return errors.Wrap(err, "failed to delete memory embedding")
	}
	return nil
}

// FindMemoriesWithoutEmbedding returns memories that have no vector yet, or
// whose vector was produced by a different model.
func (d *DB) FindMemoriesWithoutEmbedding(ctx context.Context, find *store.FindMemoriesWithoutEmbedding) ([]*store.Memory, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + memoryColumns + `
		FROM memory
		LEFT JOIN memory_embedding ON memory.id = memory_embedding.memory_id
		WHERE memory_embedding.memory_id IS NULL OR memory_embedding.model != ?
		ORDER BY memory.id ASC
		LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query memories without embedding")
	}
	defer rows.Close()

	list := []*store.Memory{}
	for rows.Next() {
		memory, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
