package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/plugin/ai/vector"
	"github.com/mnemo-labs/mnemod/store"
)

// Related score weights. Vector similarity dominates; concept overlap and
// recency refine the order.
const (
	relatedVectorWeight  = 0.6
	relatedConceptWeight = 0.3
	relatedRecencyWeight = 0.1

	// relatedCandidateLimit bounds the concept-overlap scan.
	relatedCandidateLimit = 200
)

// RelatedMemory is one related-memory recommendation.
type RelatedMemory struct {
	Memory         *store.Memory
	Similarity     float64
	SharedConcepts []string
}

// RelatedService recommends memories related to a given one by combining
// vector similarity, concept overlap and recency. The index is optional;
// without it scoring degrades to concepts and recency.
type RelatedService struct {
	store *store.Store
	index vector.Index
}

// NewRelatedService creates a RelatedService. index may be nil.
func NewRelatedService(s *store.Store, index vector.Index) *RelatedService {
	return &RelatedService{store: s, index: index}
}

// Related returns up to limit public memories related to memoryID, most
// similar first. A memory qualifies only when it shares a vector
// neighborhood or at least one concept with the target.
func (s *RelatedService) Related(ctx context.Context, memoryID int64, limit int) ([]*RelatedMemory, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}

	target, err := s.store.GetMemory(ctx, &store.FindMemory{ID: &memoryID})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get memory %d", memoryID)
	}
	if target == nil {
		return nil, errors.Wrapf(store.ErrNotFound, "memory %d", memoryID)
	}

	vectorScores := s.vectorScores(ctx, memoryID, limit)

	visibility := store.VisibilityPublic
	candidates, err := s.store.ListMemories(ctx, &store.FindMemory{
		Visibility: &visibility,
		Limit:      relatedCandidateLimit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list candidate memories")
	}

	now := time.Now().Unix()
	related := make([]*RelatedMemory, 0, limit)
	for _, candidate := range candidates {
		if candidate.ID == memoryID {
			continue
		}

		shared := sharedConcepts(target.Concepts, candidate.Concepts)
		vectorScore := vectorScores[candidate.ID]
		if vectorScore == 0 && len(shared) == 0 {
			continue
		}

		conceptScore := conceptOverlap(target.Concepts, candidate.Concepts, shared)
		score := relatedVectorWeight*vectorScore +
			relatedConceptWeight*conceptScore +
			relatedRecencyWeight*recencyScore(now, candidate.CreatedTs)

		related = append(related, &RelatedMemory{
			Memory:         candidate,
			Similarity:     score,
			SharedConcepts: shared,
		})
	}

	sort.Slice(related, func(i, j int) bool {
		if related[i].Similarity != related[j].Similarity {
			return related[i].Similarity > related[j].Similarity
		}
		return related[i].Memory.ID < related[j].Memory.ID
	})

	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

// vectorScores searches the index with the target's stored embedding.
// A missing embedding, missing index or failed search all yield no vector
// signal rather than an error.
func (s *RelatedService) vectorScores(ctx context.Context, memoryID int64, limit int) map[int64]float64 {
	if s.index == nil {
		return nil
	}
	embedding, err := s.store.GetMemoryEmbedding(ctx, memoryID)
	if err != nil || embedding == nil {
		return nil
	}
	hits, err := s.index.Search(ctx, embedding.Embedding, limit*3)
	if err != nil {
		slog.Warn("related-memory vector search failed",
			slog.Int64("memory", memoryID),
			slog.String("error", err.Error()))
		return nil
	}
	scores := make(map[int64]float64, len(hits))
	for _, hit := range hits {
		if hit.ID == memoryID {
			continue
		}
		scores[hit.ID] = float64(hit.Score)
	}
	return scores
}

// sharedConcepts returns the concepts present in both lists, preserving
// the target's order.
func sharedConcepts(target, candidate []string) []string {
	if len(target) == 0 || len(candidate) == 0 {
		return nil
	}
	candidateSet := make(map[string]bool, len(candidate))
	for _, concept := range candidate {
		candidateSet[concept] = true
	}
	var shared []string
	for _, concept := range target {
		if candidateSet[concept] {
			shared = append(shared, concept)
		}
	}
	return shared
}

// conceptOverlap is the Jaccard overlap of the two concept sets.
func conceptOverlap(target, candidate, shared []string) float64 {
	if len(shared) == 0 {
		return 0
	}
	union := len(target) + len(candidate) - len(shared)
	if union <= 0 {
		return 0
	}
	return float64(len(shared)) / float64(union)
}

// recencyScore decays from 1 toward 0 as the memory ages; a month old
// scores 0.5.
func recencyScore(nowTs, createdTs int64) float64 {
	ageDays := float64(nowTs-createdTs) / (24 * 60 * 60)
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + ageDays/30)
}
