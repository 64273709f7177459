// Package v1 exposes the memory service as a JSON HTTP API.
package v1

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/plugin/ai"
	aicontext "github.com/mnemo-labs/mnemod/plugin/ai/context"
	"github.com/mnemo-labs/mnemod/plugin/ai/vector"
	"github.com/mnemo-labs/mnemod/server/middleware"
	"github.com/mnemo-labs/mnemod/server/retrieval"
	"github.com/mnemo-labs/mnemod/server/service/privacy"
	"github.com/mnemo-labs/mnemod/server/service/search"
	"github.com/mnemo-labs/mnemod/server/stats"
	"github.com/mnemo-labs/mnemod/store"
)

// embedConcurrency caps concurrent embedding calls spawned by batch creates.
const embedConcurrency = 3

type APIV1Service struct {
	Profile   *profile.Profile
	Store     *store.Store
	Engine    *retrieval.Engine
	Collector *stats.Collector

	// InstanceID identifies this process in /health and the startup log.
	InstanceID string

	// OnShutdown, when set, is invoked after POST /shutdown acknowledges.
	OnShutdown func()

	// Embedder and Index may be nil; writes then stay lexical-only.
	Embedder ai.EmbeddingService
	Index    vector.Index

	sanitizer   *privacy.Sanitizer
	highlighter *search.Highlighter
	related     *search.RelatedService
	source      aicontext.Source

	embedSem *semaphore.Weighted
	// writes tracks fire-and-forget embedding work so shutdown can drain it.
	writes sync.WaitGroup
}

func NewAPIV1Service(
	profile *profile.Profile,
	st *store.Store,
	engine *retrieval.Engine,
	embedder ai.EmbeddingService,
	index vector.Index,
	collector *stats.Collector,
) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		Store:       st,
		Engine:      engine,
		Collector:   collector,
		InstanceID:  shortuuid.New(),
		Embedder:    embedder,
		Index:       index,
		sanitizer:   privacy.NewSanitizer(),
		highlighter: search.NewHighlighter(),
		related:     search.NewRelatedService(st, index),
		source:      &retrievalSource{engine: engine, store: st},
		embedSem:    semaphore.NewWeighted(embedConcurrency),
	}
}

// Register mounts every route under /api/v1 and again at the root, so both
// `/api/v1/memories` and the plain `/memories` aliases work.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	limiter := middleware.NewRateLimiter(0, 0)
	mutating := limiter.Middleware()

	s.registerRoutes(echoServer.Group("/api/v1"), mutating)
	s.registerRoutes(echoServer.Group(""), mutating)
}

func (s *APIV1Service) registerRoutes(g *echo.Group, mutating echo.MiddlewareFunc) {
	g.POST("/memories", s.CreateMemory, mutating)
	g.POST("/memories/batch", s.CreateMemoryBatch, mutating)
	g.GET("/memories/:id", s.GetMemory)
	g.PATCH("/memories/:id", s.UpdateMemory, mutating)
	g.DELETE("/memories/:id", s.DeleteMemory, mutating)
	g.GET("/memories/:id/related", s.GetRelatedMemories)
	g.POST("/search", s.SearchMemories)
	g.GET("/recent", s.GetRecentMemories)
	g.GET("/context", s.GetContext)
	g.POST("/distill", s.DistillEvent, mutating)
	g.GET("/stats", s.GetStats)
	g.POST("/shutdown", s.Shutdown, mutating)
	g.GET("/health", s.GetHealth)
}

// DrainWrites blocks until in-flight background embedding work finishes.
func (s *APIV1Service) DrainWrites() {
	s.writes.Wait()
}

// errorJSON maps service errors onto the API's status codes: validation
// failures are 400, missing records 404, everything else 500.
func errorJSON(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func memoryIDFromPath(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(store.ErrInvalid, "invalid memory id %q", c.Param("id"))
	}
	return id, nil
}
