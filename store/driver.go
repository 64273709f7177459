package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Memory model related methods.
	CreateMemory(ctx context.Context, create *Memory) (*Memory, error)
	ListMemories(ctx context.Context, find *FindMemory) ([]*Memory, error)
	UpdateMemory(ctx context.Context, update *UpdateMemory) error
	DeleteMemory(ctx context.Context, delete *DeleteMemory) (int64, error)
	CountMemories(ctx context.Context, find *FindMemory) (int64, error)
	GetMemoryStats(ctx context.Context) (*MemoryStats, error)
	TouchMemories(ctx context.Context, ids []int64, accessedTs int64) error

	// SearchMemories performs full-text search with relevance scores.
	SearchMemories(ctx context.Context, opts *SearchMemoriesOptions) ([]*MemoryWithScore, error)

	// MemoryEmbedding model related methods.
	UpsertMemoryEmbedding(ctx context.Context, upsert *MemoryEmbedding) (*MemoryEmbedding, error)
	ListMemoryEmbeddings(ctx context.Context, find *FindMemoryEmbedding) ([]*MemoryEmbedding, error)
	DeleteMemoryEmbedding(ctx context.Context, memoryID int64) error
	FindMemoriesWithoutEmbedding(ctx context.Context, find *FindMemoriesWithoutEmbedding) ([]*Memory, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	GetSystemSetting(ctx context.Context, name string) (*SystemSetting, error)
}
