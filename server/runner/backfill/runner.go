// Package backfill embeds memories that were stored while the embedding
// generator was unavailable, restoring their vector searchability.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/plugin/ai"
	"github.com/mnemo-labs/mnemod/plugin/ai/vector"
	"github.com/mnemo-labs/mnemod/store"
)

type Runner struct {
	store     *store.Store
	embedder  ai.EmbeddingService
	index     vector.Index
	interval  time.Duration
	batchSize int
}

// NewRunner creates an embedding backfill runner. Small batches keep
// memory peaks down; the interval keeps API pressure low.
func NewRunner(st *store.Store, embedder ai.EmbeddingService, index vector.Index) *Runner {
	return &Runner{
		store:     st,
		embedder:  embedder,
		index:     index,
		interval:  2 * time.Minute,
		batchSize: 8,
	}
}

// Run starts the background loop. It processes once on startup and then
// on every tick until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.processPending(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processPending(ctx)
		case <-ctx.Done():
			slog.Info("backfill runner stopped")
			return
		}
	}
}

// RunOnce processes pending memories once (for manual trigger and tests).
func (r *Runner) RunOnce(ctx context.Context) {
	r.processPending(ctx)
}

func (r *Runner) processPending(ctx context.Context) {
	if r.embedder == nil || r.index == nil {
		return
	}

	memories, err := r.store.FindMemoriesWithoutEmbedding(ctx, &store.FindMemoriesWithoutEmbedding{
		Model: r.embedder.Model(),
		// Fetch a larger window but embed in small batches.
		Limit: r.batchSize * 20,
	})
	if err != nil {
		slog.Error("failed to find memories without embedding", "error", err)
		return
	}
	if len(memories) == 0 {
		return
	}

	slog.Info("backfilling embeddings", "count", len(memories))

	for i := 0; i < len(memories); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("backfill cancelled", "processed", i, "total", len(memories))
			return
		default:
		}

		end := i + r.batchSize
		if end > len(memories) {
			end = len(memories)
		}
		batch := memories[i:end]

		if err := r.processBatch(ctx, batch); err != nil {
			if errors.Is(err, ai.ErrUnavailable) {
				// Still unavailable; the next cycle retries everything.
				slog.Debug("embedding service unavailable, backfill deferred")
				return
			}
			slog.Error("failed to backfill batch", "error", err)
			continue
		}
		slog.Info("backfill batch done", "count", len(batch), "progress", fmt.Sprintf("%d/%d", end, len(memories)))
	}
}

func (r *Runner) processBatch(ctx context.Context, memories []*store.Memory) error {
	texts := make([]string, len(memories))
	for i, memory := range memories {
		texts[i] = ai.CombineForEmbedding(memory.Title, memory.Content, memory.Facts, memory.Concepts)
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	for i, memory := range memories {
		if _, err := r.store.UpsertMemoryEmbedding(ctx, &store.MemoryEmbedding{
			MemoryID:  memory.ID,
			Model:     r.embedder.Model(),
			Dims:      len(vectors[i]),
			Embedding: vectors[i],
		}); err != nil {
			slog.Error("failed to upsert embedding", "memoryID", memory.ID, "error", err)
			continue
		}
		if err := r.index.Upsert(ctx, memory.ID, vectors[i]); err != nil {
			slog.Error("failed to index embedding", "memoryID", memory.ID, "error", err)
		}
	}

	return nil
}
