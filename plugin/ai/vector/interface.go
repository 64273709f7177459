// Package vector provides the similarity index over memory embeddings.
// The index is a cache of the relational store's embedding rows; it can be
// rebuilt from them at any time.
package vector

import "context"

// Hit is one similarity search result.
type Hit struct {
	ID    int64   `json:"id"`
	Score float32 `json:"score"` // cosine similarity 0-1
}

// Index is the similarity index over memory vectors.
type Index interface {
	// Upsert stores or replaces the vector for a memory.
	Upsert(ctx context.Context, id int64, vector []float32) error

	// Remove drops a memory's vector. Removing an absent id is a success.
	Remove(ctx context.Context, id int64) error

	// Search returns up to limit ids nearest to the query vector, best first.
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)

	// Count returns the number of indexed vectors.
	Count() int

	// Dimensions returns the vector dimension the index accepts.
	Dimensions() int

	// Close releases index resources.
	Close() error
}
