package vector

import (
	"context"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
)

const chromemCollectionName = "memories"

// ChromemIndex is an Index backed by chromem-go, an embedded vector store
// with exact brute-force cosine search. With a path it persists each vector
// to disk; with an empty path it is memory-only.
type ChromemIndex struct {
	mu         sync.RWMutex
	collection *chromem.Collection
	dimensions int
}

// NewChromemIndex opens (or creates) the index. Vectors are always supplied
// precomputed, so the collection's embedding func rejects raw text.
func NewChromemIndex(path string, dimensions int) (*ChromemIndex, error) {
	if dimensions <= 0 {
		return nil, errors.Errorf("invalid index dimensions %d", dimensions)
	}

	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open vector index at %s", path)
		}
	}

	collection, err := db.GetOrCreateCollection(chromemCollectionName, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open vector collection")
	}

	return &ChromemIndex{
		collection: collection,
		dimensions: dimensions,
	}, nil
}

func rejectEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("vectors must be precomputed")
}

func (idx *ChromemIndex) Upsert(ctx context.Context, id int64, vector []float32) error {
	if len(vector) != idx.dimensions {
		return errors.Errorf("vector has %d dimensions, index expects %d", len(vector), idx.dimensions)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	docID := strconv.FormatInt(id, 10)
	// chromem has no replace; delete first so re-embedding a memory works.
	if err := idx.collection.Delete(ctx, nil, nil, docID); err != nil {
		return errors.Wrapf(err, "failed to replace vector for memory %d", id)
	}
	if err := idx.collection.AddDocument(ctx, chromem.Document{
		ID:        docID,
		Embedding: vector,
	}); err != nil {
		return errors.Wrapf(err, "failed to index vector for memory %d", id)
	}
	return nil
}

func (idx *ChromemIndex) Remove(ctx context.Context, id int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.collection.Count() == 0 {
		return nil
	}
	if err := idx.collection.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return errors.Wrapf(err, "failed to remove vector for memory %d", id)
	}
	return nil
}

func (idx *ChromemIndex) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if len(vector) != idx.dimensions {
		return nil, errors.Errorf("query vector has %d dimensions, index expects %d", len(vector), idx.dimensions)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := idx.collection.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	// chromem rejects nResults greater than the collection size.
	if limit <= 0 || limit > count {
		limit = count
	}

	results, err := idx.collection.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "vector query failed")
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		id, err := strconv.ParseInt(result.ID, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "unexpected document id %q in vector index", result.ID)
		}
		hits = append(hits, Hit{ID: id, Score: result.Similarity})
	}
	return hits, nil
}

func (idx *ChromemIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collection.Count()
}

func (idx *ChromemIndex) Dimensions() int {
	return idx.dimensions
}

func (idx *ChromemIndex) Close() error {
	// chromem persists on every write; nothing to flush.
	return nil
}

var _ Index = (*ChromemIndex)(nil)
