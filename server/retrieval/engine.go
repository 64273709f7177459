// Package retrieval fuses full-text and vector search into one ranked
// result list.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/internal/filter"
	"github.com/mnemo-labs/mnemod/plugin/ai"
	"github.com/mnemo-labs/mnemod/plugin/ai/rag"
	"github.com/mnemo-labs/mnemod/plugin/ai/vector"
	"github.com/mnemo-labs/mnemod/server/internal/observability"
	"github.com/mnemo-labs/mnemod/server/stats"
	"github.com/mnemo-labs/mnemod/store"
)

const (
	// DefaultLimit caps the returned page when the request does not say
	// otherwise.
	DefaultLimit = 10
	// maxQueryLength rejects degenerate queries before they hit FTS.
	maxQueryLength = 1000
	// minLegLimit is the floor on per-leg candidate fetches. Fusion only
	// works on a superset of the final page.
	minLegLimit = 20
)

// SearchRequest describes one hybrid search.
type SearchRequest struct {
	Query string
	// Limit caps the returned page; DefaultLimit when zero.
	Limit int
	// Types restricts results to the given memory types when non-empty.
	Types []store.MemoryType
	// MinImportance drops results below the given importance.
	MinImportance *int
	// IncludePrivate includes private-visibility memories. Default false.
	IncludePrivate bool
	// HybridWeight overrides the vector leg weight (0..1); the lexical
	// leg gets the complement.
	HybridWeight *float64
	// Filter is an optional CEL expression evaluated per candidate.
	Filter string
}

// SearchResult pairs a memory with its fused score and provenance.
type SearchResult struct {
	Memory *store.Memory
	// Score is the fused RRF score, not a leg-native score.
	Score float64
	// MatchType records which legs surfaced the memory: "fts", "vector"
	// or "hybrid".
	MatchType string
}

// Engine runs hybrid retrieval over the record store and vector index.
// The embedder and index may be nil; searches then run lexical-only.
type Engine struct {
	store     *store.Store
	embedder  ai.EmbeddingService
	index     vector.Index
	collector *stats.Collector
}

// NewEngine creates a retrieval engine. embedder, index and collector
// are all optional.
func NewEngine(st *store.Store, embedder ai.EmbeddingService, index vector.Index, collector *stats.Collector) *Engine {
	return &Engine{
		store:     st,
		embedder:  embedder,
		index:     index,
		collector: collector,
	}
}

// Search runs both retrieval legs in parallel, fuses their rankings with
// weighted RRF and returns the filtered top page. The vector leg degrades
// silently; only the lexical leg failing with nothing to fall back on is
// an error.
func (e *Engine) Search(ctx context.Context, req *SearchRequest) ([]*SearchResult, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, errors.Wrap(store.ErrInvalid, "query must not be empty")
	}
	if len(req.Query) > maxQueryLength {
		return nil, errors.Wrapf(store.ErrInvalid, "query too long: %d characters (max %d)", len(req.Query), maxQueryLength)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var celFilter *filter.Filter
	if req.Filter != "" {
		compiled, err := filter.Compile(req.Filter)
		if err != nil {
			return nil, errors.Wrapf(store.ErrInvalid, "bad filter expression: %v", err)
		}
		celFilter = compiled
	}

	reqCtx, ok := observability.FromContext(ctx)
	if !ok {
		reqCtx = observability.NewRequestContext(slog.Default(), "retrieval")
	}

	if e.collector != nil {
		e.collector.RecordSearch()
	}

	legLimit := limit * 2
	if legLimit < minLegLimit {
		legLimit = minLegLimit
	}

	// Run both legs in parallel. Buffered channels so neither goroutine
	// ever blocks on send.
	type lexicalResult struct {
		results []*store.MemoryWithScore
		err     error
	}
	type vectorResult struct {
		hits    []vector.Hit
		skipped bool
		err     error
	}
	lexicalCh := make(chan lexicalResult, 1)
	vectorCh := make(chan vectorResult, 1)

	go func() {
		results, err := e.store.SearchMemories(ctx, &store.SearchMemoriesOptions{
			Query: req.Query,
			Limit: legLimit,
		})
		lexicalCh <- lexicalResult{results: results, err: err}
	}()

	go func() {
		if e.embedder == nil || e.index == nil {
			vectorCh <- vectorResult{skipped: true}
			return
		}
		queryVector, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			vectorCh <- vectorResult{skipped: true, err: err}
			return
		}
		hits, err := e.index.Search(ctx, queryVector, legLimit)
		if err != nil {
			vectorCh <- vectorResult{skipped: true, err: err}
			return
		}
		vectorCh <- vectorResult{hits: hits}
	}()

	lexicalRes := <-lexicalCh
	vectorRes := <-vectorCh

	if vectorRes.skipped {
		if e.collector != nil {
			e.collector.RecordVectorSkip()
		}
		switch {
		case vectorRes.err == nil:
			reqCtx.Debug("vector search not configured, lexical only")
		case errors.Is(vectorRes.err, ai.ErrUnavailable):
			reqCtx.Debug("embedding service unavailable, lexical only")
		default:
			reqCtx.Warn("vector search failed, lexical only",
				slog.String("error", vectorRes.err.Error()))
		}
	}

	if lexicalRes.err != nil {
		if len(vectorRes.hits) == 0 {
			return nil, errors.Wrap(lexicalRes.err, "failed to search memories")
		}
		reqCtx.Warn("full-text search failed, vector only",
			slog.String("error", lexicalRes.err.Error()))
		lexicalRes.results = nil
	}

	config := rag.DefaultFusionConfig()
	if req.HybridWeight != nil {
		w := *req.HybridWeight
		if w < 0 {
			w = 0
		} else if w > 1 {
			w = 1
		}
		config.VectorWeight = w
		config.LexicalWeight = 1 - w
	}

	lexicalCandidates := make([]rag.Candidate, 0, len(lexicalRes.results))
	resolved := make(map[int64]*store.Memory, len(lexicalRes.results))
	for _, r := range lexicalRes.results {
		lexicalCandidates = append(lexicalCandidates, rag.Candidate{ID: r.Memory.ID, Score: r.Score})
		resolved[r.Memory.ID] = r.Memory
	}
	vectorCandidates := make([]rag.Candidate, 0, len(vectorRes.hits))
	for _, hit := range vectorRes.hits {
		vectorCandidates = append(vectorCandidates, rag.Candidate{ID: hit.ID, Score: float64(hit.Score)})
	}

	fused := rag.FuseRanks(lexicalCandidates, vectorCandidates, config)

	results := make([]*SearchResult, 0, limit)
	for _, candidate := range fused {
		memory := resolved[candidate.ID]
		if memory == nil {
			// Vector-only hit: resolve through the record store. A stale
			// index entry for a deleted memory drops out here.
			found, err := e.store.GetMemory(ctx, &store.FindMemory{ID: &candidate.ID})
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve memory %d", candidate.ID)
			}
			if found == nil {
				continue
			}
			memory = found
		}
		if !matchesRequest(memory, req, celFilter) {
			continue
		}
		results = append(results, &SearchResult{
			Memory:    memory,
			Score:     candidate.Score,
			MatchType: candidate.MatchType,
		})
		if len(results) >= limit {
			break
		}
	}

	e.touch(ctx, reqCtx, results)

	reqCtx.Debug("search completed",
		slog.Int(observability.LogFieldCount, len(results)),
		slog.Int("fused", len(fused)),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))

	return results, nil
}

// matchesRequest applies the post-fusion request filters.
func matchesRequest(memory *store.Memory, req *SearchRequest, celFilter *filter.Filter) bool {
	if !req.IncludePrivate && memory.Visibility == store.VisibilityPrivate {
		return false
	}
	if len(req.Types) > 0 && !typeIn(req.Types, memory.Type) {
		return false
	}
	if req.MinImportance != nil && memory.Importance < *req.MinImportance {
		return false
	}
	if celFilter != nil && !celFilter.Matches(memory) {
		return false
	}
	return true
}

func typeIn(types []store.MemoryType, t store.MemoryType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// touch bumps access tracking on the returned page. Best effort: a
// tracking failure never fails the search.
func (e *Engine) touch(ctx context.Context, reqCtx *observability.RequestContext, results []*SearchResult) {
	if len(results) == 0 {
		return
	}
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Memory.ID)
	}
	if err := e.store.TouchMemories(ctx, ids, time.Now().Unix()); err != nil {
		reqCtx.Warn("failed to bump access tracking", slog.String("error", err.Error()))
	}
}
