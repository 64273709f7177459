package v1

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/internal/filter"
	aicontext "github.com/mnemo-labs/mnemod/plugin/ai/context"
	"github.com/mnemo-labs/mnemod/server/retrieval"
	"github.com/mnemo-labs/mnemod/server/service/search"
	"github.com/mnemo-labs/mnemod/store"
)

// SearchMemoriesRequest is the body of POST /search.
type SearchMemoriesRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	Types          []string `json:"types"`
	MinImportance  *int     `json:"minImportance"`
	IncludePrivate bool     `json:"includePrivate"`
	HybridWeight   *float64 `json:"hybridWeight"`
	Filter         string   `json:"filter"`
}

// SearchResult pairs a memory with its fused score, provenance, and a
// highlighted snippet of the matched content.
type SearchResult struct {
	Memory    *Memory        `json:"memory"`
	Score     float64        `json:"score"`
	MatchType string         `json:"matchType"`
	Snippet   search.Snippet `json:"snippet"`
}

// SearchMemoriesResponse is the body of a successful search.
type SearchMemoriesResponse struct {
	Results []*SearchResult `json:"results"`
	Count   int             `json:"count"`
}

// SearchMemories runs hybrid retrieval over the store.
// POST /api/v1/search
func (s *APIV1Service) SearchMemories(c echo.Context) error {
	ctx := c.Request().Context()

	req := &SearchMemoriesRequest{}
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}

	types, err := parseMemoryTypes(req.Types)
	if err != nil {
		return errorJSON(c, err)
	}

	results, err := s.Engine.Search(ctx, &retrieval.SearchRequest{
		Query:          req.Query,
		Limit:          req.Limit,
		Types:          types,
		MinImportance:  req.MinImportance,
		IncludePrivate: req.IncludePrivate,
		HybridWeight:   req.HybridWeight,
		Filter:         req.Filter,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	converted := make([]*SearchResult, 0, len(results))
	for _, result := range results {
		converted = append(converted, &SearchResult{
			Memory:    convertMemory(result.Memory),
			Score:     result.Score,
			MatchType: result.MatchType,
			Snippet:   s.highlighter.SnippetFor(req.Query, result.Memory.Content, 0),
		})
	}

	return c.JSON(http.StatusOK, &SearchMemoriesResponse{
		Results: converted,
		Count:   len(converted),
	})
}

// defaultRecentLimit bounds GET /recent when no limit is given.
const defaultRecentLimit = 20

// MemoryListResponse wraps plain memory listings.
type MemoryListResponse struct {
	Memories []*Memory `json:"memories"`
	Count    int       `json:"count"`
}

// GetRecentMemories lists the newest public memories.
// GET /api/v1/recent?limit=&types=&filter=
func (s *APIV1Service) GetRecentMemories(c echo.Context) error {
	ctx := c.Request().Context()

	limit := defaultRecentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return errorJSON(c, errors.Wrapf(store.ErrInvalid, "invalid limit %q", raw))
		}
		limit = parsed
	}

	types, err := parseMemoryTypes(splitCSV(c.QueryParam("types")))
	if err != nil {
		return errorJSON(c, err)
	}

	var celFilter *filter.Filter
	if expr := c.QueryParam("filter"); expr != "" {
		compiled, err := filter.Compile(expr)
		if err != nil {
			return errorJSON(c, errors.Wrapf(store.ErrInvalid, "invalid filter: %v", err))
		}
		celFilter = compiled
	}

	visibility := store.VisibilityPublic
	memories, err := s.Store.ListMemories(ctx, &store.FindMemory{
		Types:      types,
		Visibility: &visibility,
		Limit:      limit,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	if celFilter != nil {
		matched := memories[:0]
		for _, memory := range memories {
			if celFilter.Matches(memory) {
				matched = append(matched, memory)
			}
		}
		memories = matched
	}

	ids := make([]int64, 0, len(memories))
	for _, memory := range memories {
		ids = append(ids, memory.ID)
	}
	s.touchMemories(ctx, ids)

	return c.JSON(http.StatusOK, &MemoryListResponse{
		Memories: convertMemoryList(memories),
		Count:    len(memories),
	})
}

// RelatedMemoryResult is one related-memory hit.
type RelatedMemoryResult struct {
	Memory         *Memory  `json:"memory"`
	Similarity     float64  `json:"similarity"`
	SharedConcepts []string `json:"sharedConcepts,omitempty"`
}

// RelatedMemoriesResponse is the body of GET /memories/:id/related.
type RelatedMemoriesResponse struct {
	Related []*RelatedMemoryResult `json:"related"`
	Count   int                    `json:"count"`
}

// GetRelatedMemories finds memories near the given one by vector
// neighborhood and shared concepts.
// GET /api/v1/memories/:id/related?limit=
func (s *APIV1Service) GetRelatedMemories(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := memoryIDFromPath(c)
	if err != nil {
		return errorJSON(c, err)
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return errorJSON(c, errors.Wrapf(store.ErrInvalid, "invalid limit %q", raw))
		}
		limit = parsed
	}

	related, err := s.related.Related(ctx, id, limit)
	if err != nil {
		return errorJSON(c, err)
	}

	converted := make([]*RelatedMemoryResult, 0, len(related))
	for _, hit := range related {
		converted = append(converted, &RelatedMemoryResult{
			Memory:         convertMemory(hit.Memory),
			Similarity:     hit.Similarity,
			SharedConcepts: hit.SharedConcepts,
		})
	}

	return c.JSON(http.StatusOK, &RelatedMemoriesResponse{
		Related: converted,
		Count:   len(converted),
	})
}

// ContextResponse carries the rendered context block and its estimated
// token cost.
type ContextResponse struct {
	Context string `json:"context"`
	Tokens  int    `json:"tokens"`
}

// GetContext renders a token-budgeted context block: a query routes through
// hybrid retrieval, a phase through the phase lookup, neither through plain
// recency.
// GET /api/v1/context?query=&phase=&limit=&budget=&format=
func (s *APIV1Service) GetContext(c echo.Context) error {
	ctx := c.Request().Context()

	config := aicontext.Config{TokenBudget: s.Profile.ContextBudget}
	if raw := c.QueryParam("budget"); raw != "" {
		budget, err := strconv.Atoi(raw)
		if err != nil || budget <= 0 {
			return errorJSON(c, errors.Wrapf(store.ErrInvalid, "invalid budget %q", raw))
		}
		config.TokenBudget = budget
	}
	switch format := aicontext.Format(c.QueryParam("format")); format {
	case "", aicontext.FormatTimeline, aicontext.FormatBullet, aicontext.FormatStructured:
		config.Format = format
	default:
		return errorJSON(c, errors.Wrapf(store.ErrInvalid, "unknown format %q", format))
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return errorJSON(c, errors.Wrapf(store.ErrInvalid, "invalid limit %q", raw))
		}
		limit = parsed
	}

	builder := aicontext.NewBuilder(s.source, config)

	var rendered string
	var err error
	switch {
	case c.QueryParam("query") != "":
		rendered, err = builder.BuildContext(ctx, c.QueryParam("query"))
	case c.QueryParam("phase") != "":
		rendered, err = builder.BuildPhaseContext(ctx, c.QueryParam("phase"), limit)
	default:
		rendered, err = builder.BuildRecentContext(ctx, limit)
	}
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, &ContextResponse{
		Context: rendered,
		Tokens:  aicontext.EstimateTokens(rendered),
	})
}

// retrievalSource adapts the retrieval engine and store to the context
// builder's candidate interface.
type retrievalSource struct {
	engine *retrieval.Engine
	store  *store.Store
}

func (r *retrievalSource) Search(ctx context.Context, query string, limit int) ([]*store.MemoryWithScore, error) {
	results, err := r.engine.Search(ctx, &retrieval.SearchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	scored := make([]*store.MemoryWithScore, 0, len(results))
	for _, result := range results {
		scored = append(scored, &store.MemoryWithScore{Memory: result.Memory, Score: result.Score})
	}
	return scored, nil
}

func (r *retrievalSource) Recent(ctx context.Context, limit int, types []store.MemoryType) ([]*store.Memory, error) {
	visibility := store.VisibilityPublic
	return r.store.ListMemories(ctx, &store.FindMemory{
		Types:      types,
		Visibility: &visibility,
		Limit:      limit,
	})
}

func (r *retrievalSource) ByPhase(ctx context.Context, phase string, limit int) ([]*store.Memory, error) {
	visibility := store.VisibilityPublic
	return r.store.ListMemories(ctx, &store.FindMemory{
		Phase:      &phase,
		Visibility: &visibility,
		Limit:      limit,
	})
}

// parseMemoryTypes validates type names from the wire.
func parseMemoryTypes(raw []string) ([]store.MemoryType, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	types := make([]store.MemoryType, 0, len(raw))
	for _, name := range raw {
		memoryType := store.MemoryType(strings.TrimSpace(name))
		if !store.IsValidMemoryType(memoryType) {
			return nil, errors.Wrapf(store.ErrInvalid, "unknown memory type %q", name)
		}
		types = append(types, memoryType)
	}
	return types, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
