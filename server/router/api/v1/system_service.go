package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mnemo-labs/mnemod/server/stats"
)

// shutdownGraceDelay is how long POST /shutdown waits after acknowledging
// before the stop actually begins, so the response reaches the caller.
const shutdownGraceDelay = 500 * time.Millisecond

// HealthResponse reports liveness. It is served even while background
// initialization (index rebuild, backfill) is still running.
type HealthResponse struct {
	Status   string `json:"status"`
	Instance string `json:"instance"`
	Version  string `json:"version"`
}

// GetHealth reports process liveness.
// GET /api/v1/health
func (s *APIV1Service) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:   "ok",
		Instance: s.InstanceID,
		Version:  s.Profile.Version,
	})
}

// MemoryStatsPayload summarizes the record store.
type MemoryStatsPayload struct {
	Total         int64            `json:"total"`
	ByType        map[string]int64 `json:"byType"`
	LastCreatedAt *time.Time       `json:"lastCreatedAt,omitempty"`
}

// VectorStatsPayload summarizes the vector side. Available is false when
// the service runs lexical-only.
type VectorStatsPayload struct {
	Available  bool  `json:"available"`
	Count      int64 `json:"count"`
	Dimensions int   `json:"dimensions"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Memories MemoryStatsPayload `json:"memories"`
	Vector   VectorStatsPayload `json:"vector"`
	Activity stats.Snapshot     `json:"activity"`
}

// GetStats reports store counts, vector index state, and the process's
// activity counters. Degraded vector capability shows up here rather than
// as per-request errors.
// GET /api/v1/stats
func (s *APIV1Service) GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	memoryStats, err := s.Store.GetMemoryStats(ctx)
	if err != nil {
		return errorJSON(c, err)
	}

	byType := make(map[string]int64, len(memoryStats.CountByType))
	for memoryType, count := range memoryStats.CountByType {
		byType[string(memoryType)] = count
	}
	memories := MemoryStatsPayload{
		Total:  memoryStats.TotalCount,
		ByType: byType,
	}
	if memoryStats.LastCreatedTs > 0 {
		lastCreatedAt := time.Unix(memoryStats.LastCreatedTs, 0).UTC()
		memories.LastCreatedAt = &lastCreatedAt
	}

	vectorStats := VectorStatsPayload{
		Available: s.Embedder != nil && s.Index != nil,
	}
	if s.Index != nil {
		vectorStats.Dimensions = s.Index.Dimensions()
		vectorStats.Count = int64(s.Index.Count())
	}

	return c.JSON(http.StatusOK, &StatsResponse{
		Memories: memories,
		Vector:   vectorStats,
		Activity: s.Collector.Snapshot(),
	})
}

// DistillEvent is reserved: the distiller runs as a library today, and this
// endpoint must say so rather than silently succeed.
// POST /api/v1/distill
func (s *APIV1Service) DistillEvent(c echo.Context) error {
	s.Collector.RecordDistill()
	return c.JSON(http.StatusNotImplemented, map[string]string{"message": "not implemented"})
}

// Shutdown acknowledges, then triggers a graceful stop after a short delay
// so the acknowledgment reaches the caller first.
// POST /api/v1/shutdown
func (s *APIV1Service) Shutdown(c echo.Context) error {
	if s.OnShutdown != nil {
		time.AfterFunc(shutdownGraceDelay, s.OnShutdown)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "shutting down"})
}
