package store

import "context"

// MemoryEmbedding is the durable mirror of a vector stored in the index.
// The index is rebuilt from these rows when its own persistence is missing,
// so the relational store stays the single source of truth.
type MemoryEmbedding struct {
	MemoryID  int64
	Model     string
	Dims      int
	Embedding []float32
	CreatedTs int64
	UpdatedTs int64
}

// FindMemoryEmbedding is the find condition for memory embeddings.
type FindMemoryEmbedding struct {
	MemoryID *int64
	Model    *string
	Limit    int
}

// FindMemoriesWithoutEmbedding locates memories missing a vector, for backfill.
type FindMemoriesWithoutEmbedding struct {
	Model string
	Limit int
}

// MemoryWithScore pairs a memory with a retrieval score.
type MemoryWithScore struct {
	Memory *Memory
	Score  float64
}

// SearchMemoriesOptions drives full-text search.
type SearchMemoriesOptions struct {
	Query string
	Find  *FindMemory
	Limit int
}

// UpsertMemoryEmbedding inserts or replaces the embedding mirror row.
func (s *Store) UpsertMemoryEmbedding(ctx context.Context, upsert *MemoryEmbedding) (*MemoryEmbedding, error) {
	return s.driver.UpsertMemoryEmbedding(ctx, upsert)
}

// GetMemoryEmbedding gets the stored embedding for one memory. A nil result
// with nil error means the memory simply has no vector yet.
func (s *Store) GetMemoryEmbedding(ctx context.Context, memoryID int64) (*MemoryEmbedding, error) {
	list, err := s.driver.ListMemoryEmbeddings(ctx, &FindMemoryEmbedding{MemoryID: &memoryID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListMemoryEmbeddings(ctx context.Context, find *FindMemoryEmbedding) ([]*MemoryEmbedding, error) {
	return s.driver.ListMemoryEmbeddings(ctx, find)
}

// DeleteMemoryEmbedding removes the mirror row. Absent rows are a success.
func (s *Store) DeleteMemoryEmbedding(ctx context.Context, memoryID int64) error {
	return s.driver.DeleteMemoryEmbedding(ctx, memoryID)
}

func (s *Store) FindMemoriesWithoutEmbedding(ctx context.Context, find *FindMemoriesWithoutEmbedding) ([]*Memory, error) {
	return s.driver.FindMemoriesWithoutEmbedding(ctx, find)
}

// SearchMemories runs full-text search with relevance scores.
func (s *Store) SearchMemories(ctx context.Context, opts *SearchMemoriesOptions) ([]*MemoryWithScore, error) {
	return s.driver.SearchMemories(ctx, opts)
}
