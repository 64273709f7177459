// Package context renders retrieved memories into token-budgeted text
// blocks ready for injection into a downstream prompt.
package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemo-labs/mnemod/store"
)

// Format selects how memories render into text.
type Format string

const (
	// FormatTimeline renders a verbose block per memory with timestamps.
	FormatTimeline Format = "timeline"
	// FormatBullet renders one line plus a content snippet per memory.
	FormatBullet Format = "bullet"
	// FormatStructured renders a tagged block per memory.
	FormatStructured Format = "structured"
)

// Source supplies ranked candidates for context building.
type Source interface {
	// Search returns relevance-ranked candidates for a query.
	Search(ctx context.Context, query string, limit int) ([]*store.MemoryWithScore, error)

	// Recent returns the newest memories, optionally filtered by type.
	Recent(ctx context.Context, limit int, types []store.MemoryType) ([]*store.Memory, error)

	// ByPhase returns the newest memories tagged with the given phase.
	ByPhase(ctx context.Context, phase string, limit int) ([]*store.Memory, error)
}

// Config controls context building.
type Config struct {
	// TokenBudget caps the estimated token count of rendered output.
	TokenBudget int
	// Format selects the rendering style.
	Format Format
	// PriorityTypes orders memory types for packing; earlier is higher
	// priority, unlisted types sort after all listed ones.
	PriorityTypes []store.MemoryType
}

// Builder renders ranked memories into prompt-ready context blocks.
type Builder struct {
	source Source
	config Config
}

// NewBuilder creates a Builder, filling config defaults.
func NewBuilder(source Source, config Config) *Builder {
	if config.TokenBudget <= 0 {
		config.TokenBudget = DefaultTokenBudget
	}
	if config.Format == "" {
		config.Format = FormatTimeline
	}
	if len(config.PriorityTypes) == 0 {
		config.PriorityTypes = DefaultPriorityTypes
	}
	return &Builder{source: source, config: config}
}

// BuildContext retrieves memories relevant to the query and renders them
// within the token budget. Returns an empty string when nothing fits.
func (b *Builder) BuildContext(ctx context.Context, query string) (string, error) {
	// Fetch more than the budget can hold; packing decides what survives.
	candidates, err := b.source.Search(ctx, query, candidateLimit)
	if err != nil {
		return "", err
	}
	return b.render("Relevant memories", candidates), nil
}

// BuildRecentContext renders the newest memories.
func (b *Builder) BuildRecentContext(ctx context.Context, limit int) (string, error) {
	if limit <= 0 {
		limit = candidateLimit
	}
	memories, err := b.source.Recent(ctx, limit, nil)
	if err != nil {
		return "", err
	}
	return b.render("Recent memories", withNeutralScore(memories)), nil
}

// BuildPhaseContext renders memories captured during the given phase.
func (b *Builder) BuildPhaseContext(ctx context.Context, phase string, limit int) (string, error) {
	if limit <= 0 {
		limit = candidateLimit
	}
	memories, err := b.source.ByPhase(ctx, phase, limit)
	if err != nil {
		return "", err
	}
	return b.render(fmt.Sprintf("Memories from the %s phase", phase), withNeutralScore(memories)), nil
}

// candidateLimit is the superset size fetched before budget packing.
const candidateLimit = 20

// withNeutralScore adapts recency-ordered memories to scored candidates.
// With a neutral score, prioritization reduces to type rank and importance.
func withNeutralScore(memories []*store.Memory) []*store.MemoryWithScore {
	scored := make([]*store.MemoryWithScore, 0, len(memories))
	for _, memory := range memories {
		scored = append(scored, &store.MemoryWithScore{Memory: memory, Score: 1.0})
	}
	return scored
}

// render prioritizes candidates and greedily packs whole entries until the
// next one would exceed the budget. A header-only result collapses to "".
func (b *Builder) render(header string, candidates []*store.MemoryWithScore) string {
	if len(candidates) == 0 {
		return ""
	}

	ranked := b.prioritize(candidates)

	headerLine := fmt.Sprintf("## %s\n\n", header)
	used := EstimateTokens(headerLine)

	var entries []string
	var costs []int
	for _, r := range ranked {
		entry := b.formatEntry(r.memory)
		cost := EstimateTokens(entry)
		if used+cost > b.config.TokenBudget {
			break
		}
		entries = append(entries, entry)
		costs = append(costs, cost)
		used += cost
	}
	if len(entries) == 0 {
		return ""
	}

	omitted := len(ranked) - len(entries)
	footer := ""
	if omitted > 0 {
		footer = footerLine(omitted)
		// The footer counts against the budget too; evict entries from the
		// back until everything fits.
		for len(entries) > 0 && used+EstimateTokens(footer) > b.config.TokenBudget {
			last := len(entries) - 1
			used -= costs[last]
			entries = entries[:last]
			costs = costs[:last]
			omitted++
			footer = footerLine(omitted)
		}
		if len(entries) == 0 {
			return ""
		}
	}

	var sb strings.Builder
	sb.WriteString(headerLine)
	for _, entry := range entries {
		sb.WriteString(entry)
	}
	sb.WriteString(footer)
	return sb.String()
}

func footerLine(omitted int) string {
	return fmt.Sprintf("\n(%d more matching memories not shown)\n", omitted)
}
