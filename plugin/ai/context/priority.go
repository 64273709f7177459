package context

import (
	"sort"

	"github.com/mnemo-labs/mnemod/store"
)

// DefaultPriorityTypes orders memory types for context packing. Decisions
// and session summaries carry the most downstream value, so they pack first.
var DefaultPriorityTypes = []store.MemoryType{
	store.MemoryTypeDecision,
	store.MemoryTypeSessionSummary,
	store.MemoryTypeObservation,
	store.MemoryTypeUserPrompt,
	store.MemoryTypeNote,
	store.MemoryTypeTodo,
}

type rankedMemory struct {
	memory   *store.Memory
	typeRank int
	priority float64
}

// prioritize orders candidates by type-list rank first, then by
// score weighted with importance. The sort is stable, so candidates tied on
// both keys keep their incoming (deterministic) order.
func (b *Builder) prioritize(candidates []*store.MemoryWithScore) []*rankedMemory {
	typeRank := make(map[store.MemoryType]int, len(b.config.PriorityTypes))
	for i, t := range b.config.PriorityTypes {
		typeRank[t] = i
	}
	unlisted := len(b.config.PriorityTypes)

	ranked := make([]*rankedMemory, 0, len(candidates))
	for _, candidate := range candidates {
		rank, ok := typeRank[candidate.Memory.Type]
		if !ok {
			rank = unlisted
		}
		ranked = append(ranked, &rankedMemory{
			memory:   candidate.Memory,
			typeRank: rank,
			priority: candidate.Score * float64(candidate.Memory.Importance) / 10,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].typeRank != ranked[j].typeRank {
			return ranked[i].typeRank < ranked[j].typeRank
		}
		return ranked[i].priority > ranked[j].priority
	})

	return ranked
}
