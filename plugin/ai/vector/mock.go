package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MockIndex is an in-memory Index for testing. It performs the same exact
// cosine search as the real index without touching disk.
type MockIndex struct {
	mu         sync.RWMutex
	vectors    map[int64][]float32
	dimensions int
}

// NewMockIndex creates an empty MockIndex.
func NewMockIndex(dimensions int) *MockIndex {
	return &MockIndex{
		vectors:    make(map[int64][]float32),
		dimensions: dimensions,
	}
}

func (m *MockIndex) Upsert(_ context.Context, id int64, vector []float32) error {
	if len(vector) != m.dimensions {
		return errors.Errorf("vector has %d dimensions, index expects %d", len(vector), m.dimensions)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]float32, len(vector))
	copy(stored, vector)
	m.vectors[id] = stored
	return nil
}

func (m *MockIndex) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.vectors, id)
	return nil
}

func (m *MockIndex) Search(_ context.Context, vector []float32, limit int) ([]Hit, error) {
	if len(vector) != m.dimensions {
		return nil, errors.Errorf("query vector has %d dimensions, index expects %d", len(vector), m.dimensions)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.vectors))
	for id, stored := range m.vectors {
		hits = append(hits, Hit{ID: id, Score: cosineSimilarity(vector, stored)})
	}

	// Equal scores rank by id so results are stable across runs.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MockIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *MockIndex) Dimensions() int {
	return m.dimensions
}

func (m *MockIndex) Close() error {
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors,
// clamped to [0, 1] to match the Hit score contract.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	raw := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return float32(raw)
}

var _ Index = (*MockIndex)(nil)
