package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mnemo-labs/mnemod/plugin/ai"
	"github.com/mnemo-labs/mnemod/server/internal/observability"
	"github.com/mnemo-labs/mnemod/store"
)

// batchEmbedTimeout bounds the background embedding work a batch create
// leaves behind after its response is gone.
const batchEmbedTimeout = 2 * time.Minute

// Memory is the wire form of a stored memory.
type Memory struct {
	ID          int64      `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Facts       []string   `json:"facts,omitempty"`
	Concepts    []string   `json:"concepts,omitempty"`
	SourceFiles []string   `json:"sourceFiles,omitempty"`
	Importance  int        `json:"importance"`
	Visibility  string     `json:"visibility"`
	Phase       string     `json:"phase,omitempty"`
	SessionID   string     `json:"sessionId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	AccessedAt  *time.Time `json:"accessedAt,omitempty"`
	AccessCount int64      `json:"accessCount"`
}

func convertMemory(memory *store.Memory) *Memory {
	converted := &Memory{
		ID:          memory.ID,
		Type:        string(memory.Type),
		Title:       memory.Title,
		Content:     memory.Content,
		Facts:       memory.Facts,
		Concepts:    memory.Concepts,
		SourceFiles: memory.SourceFiles,
		Importance:  memory.Importance,
		Visibility:  string(memory.Visibility),
		Phase:       memory.Phase,
		SessionID:   memory.SessionID,
		CreatedAt:   time.Unix(memory.CreatedTs, 0).UTC(),
		UpdatedAt:   time.Unix(memory.UpdatedTs, 0).UTC(),
		AccessCount: memory.AccessCount,
	}
	if memory.AccessedTs > 0 {
		accessedAt := time.Unix(memory.AccessedTs, 0).UTC()
		converted.AccessedAt = &accessedAt
	}
	return converted
}

func convertMemoryList(memories []*store.Memory) []*Memory {
	converted := make([]*Memory, 0, len(memories))
	for _, memory := range memories {
		converted = append(converted, convertMemory(memory))
	}
	return converted
}

// CreateMemoryRequest accepts importance on either scale: fractions in
// (0,1) are rescaled to 0-10, integers pass through.
type CreateMemoryRequest struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Facts       []string `json:"facts"`
	Concepts    []string `json:"concepts"`
	SourceFiles []string `json:"sourceFiles"`
	Importance  *float64 `json:"importance"`
	Visibility  string   `json:"visibility"`
	Phase       string   `json:"phase"`
	SessionID   string   `json:"sessionId"`
}

// defaultImportance is assigned when a create omits the field.
const defaultImportance = 5

// toMemory validates and sanitizes one create request. Every field that can
// carry caller text passes the redaction pipeline before storage.
func (s *APIV1Service) toMemory(req *CreateMemoryRequest) (*store.Memory, error) {
	importance := defaultImportance
	if req.Importance != nil {
		normalized, err := store.NormalizeImportance(*req.Importance)
		if err != nil {
			return nil, errors.Wrap(store.ErrInvalid, err.Error())
		}
		importance = normalized
	}

	visibility := store.Visibility(req.Visibility)
	if visibility == "" {
		visibility = store.VisibilityPublic
	}
	if visibility != store.VisibilityPublic && visibility != store.VisibilityPrivate {
		return nil, errors.Wrapf(store.ErrInvalid, "unknown visibility %q", req.Visibility)
	}

	facts := make([]string, 0, len(req.Facts))
	for _, fact := range req.Facts {
		facts = append(facts, s.sanitizer.Clean(fact))
	}

	return &store.Memory{
		Type:        store.MemoryType(req.Type),
		Title:       s.sanitizer.Clean(req.Title),
		Content:     s.sanitizer.Clean(req.Content),
		Facts:       facts,
		Concepts:    req.Concepts,
		SourceFiles: req.SourceFiles,
		Importance:  importance,
		Visibility:  visibility,
		Phase:       req.Phase,
		SessionID:   req.SessionID,
	}, nil
}

// CreateMemory stores one memory and embeds it before responding, so the
// record is vector-searchable the moment the caller gets it back.
// POST /api/v1/memories
func (s *APIV1Service) CreateMemory(c echo.Context) error {
	ctx := c.Request().Context()

	req := &CreateMemoryRequest{}
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}

	memory, err := s.toMemory(req)
	if err != nil {
		return errorJSON(c, err)
	}

	created, err := s.Store.CreateMemory(ctx, memory)
	if err != nil {
		return errorJSON(c, err)
	}
	s.Collector.RecordCreate()

	if err := s.embedMemory(ctx, created); err != nil {
		logger := loggerFrom(ctx)
		if errors.Is(err, ai.ErrUnavailable) {
			logger.Debug("embedding unavailable, memory stored lexical-only",
				slog.Int64(observability.LogFieldMemoryID, created.ID))
		} else {
			logger.Warn("failed to embed created memory",
				slog.Int64(observability.LogFieldMemoryID, created.ID),
				slog.String("error", err.Error()))
		}
	}

	return c.JSON(http.StatusCreated, convertMemory(created))
}

// CreateMemoryBatchRequest wraps many creates in one call.
type CreateMemoryBatchRequest struct {
	Memories []*CreateMemoryRequest `json:"memories"`
}

// CreateMemoryBatchResponse returns the stored records; their embeddings
// are generated in the background.
type CreateMemoryBatchResponse struct {
	Memories []*Memory `json:"memories"`
	Count    int       `json:"count"`
}

// CreateMemoryBatch stores many memories. All requests are validated before
// anything is written, so a bad entry rejects the whole batch with no
// partial state. Embedding runs concurrently after the response.
// POST /api/v1/memories/batch
func (s *APIV1Service) CreateMemoryBatch(c echo.Context) error {
	ctx := c.Request().Context()

	req := &CreateMemoryBatchRequest{}
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	if len(req.Memories) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "memories must not be empty"})
	}

	memories := make([]*store.Memory, 0, len(req.Memories))
	for i, create := range req.Memories {
		memory, err := s.toMemory(create)
		if err != nil {
			return errorJSON(c, errors.Wrapf(err, "memory %d", i))
		}
		memories = append(memories, memory)
	}

	created := make([]*store.Memory, 0, len(memories))
	for _, memory := range memories {
		stored, err := s.Store.CreateMemory(ctx, memory)
		if err != nil {
			return errorJSON(c, err)
		}
		s.Collector.RecordCreate()
		created = append(created, stored)
	}

	s.embedBatchAsync(created)

	return c.JSON(http.StatusCreated, &CreateMemoryBatchResponse{
		Memories: convertMemoryList(created),
		Count:    len(created),
	})
}

// embedBatchAsync embeds created memories without blocking the response.
// Failures are logged; the records stay findable through lexical search and
// the backfill runner retries them later.
func (s *APIV1Service) embedBatchAsync(created []*store.Memory) {
	if s.Embedder == nil || s.Index == nil {
		return
	}

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		// The request context is gone once the response is written.
		ctx, cancel := context.WithTimeout(context.Background(), batchEmbedTimeout)
		defer cancel()

		group, ctx := errgroup.WithContext(ctx)
		for _, memory := range created {
			memory := memory
			group.Go(func() error {
				if err := s.embedSem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer s.embedSem.Release(1)

				if err := s.embedMemory(ctx, memory); err != nil {
					slog.Warn("failed to embed batch memory",
						slog.Int64(observability.LogFieldMemoryID, memory.ID),
						slog.String("error", err.Error()))
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			slog.Warn("batch embedding aborted", slog.String("error", err.Error()))
		}
	}()
}

// embedMemory generates and stores the vector for one memory: mirror row in
// SQLite first (the source of truth), then the searchable index entry.
func (s *APIV1Service) embedMemory(ctx context.Context, memory *store.Memory) error {
	if s.Embedder == nil || s.Index == nil {
		return nil
	}

	text := ai.CombineForEmbedding(memory.Title, memory.Content, memory.Facts, memory.Concepts)
	embedding, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	if _, err := s.Store.UpsertMemoryEmbedding(ctx, &store.MemoryEmbedding{
		MemoryID:  memory.ID,
		Model:     s.Embedder.Model(),
		Dims:      len(embedding),
		Embedding: embedding,
	}); err != nil {
		return errors.Wrap(err, "failed to store embedding")
	}
	if err := s.Index.Upsert(ctx, memory.ID, embedding); err != nil {
		return errors.Wrap(err, "failed to index embedding")
	}
	return nil
}

// GetMemory returns one memory by id.
// GET /api/v1/memories/:id
func (s *APIV1Service) GetMemory(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := memoryIDFromPath(c)
	if err != nil {
		return errorJSON(c, err)
	}

	memory, err := s.Store.GetMemory(ctx, &store.FindMemory{ID: &id})
	if err != nil {
		return errorJSON(c, err)
	}
	if memory == nil {
		return errorJSON(c, errors.Wrapf(store.ErrNotFound, "memory %d", id))
	}

	s.touchMemories(ctx, []int64{id})
	return c.JSON(http.StatusOK, convertMemory(memory))
}

// UpdateMemoryRequest carries a partial update; absent fields stay as they
// are. Slices replace wholesale when present.
type UpdateMemoryRequest struct {
	Type        *string  `json:"type"`
	Title       *string  `json:"title"`
	Content     *string  `json:"content"`
	Facts       []string `json:"facts"`
	Concepts    []string `json:"concepts"`
	SourceFiles []string `json:"sourceFiles"`
	Importance  *float64 `json:"importance"`
	Visibility  *string  `json:"visibility"`
	Phase       *string  `json:"phase"`
	SessionID   *string  `json:"sessionId"`
}

// UpdateMemory applies a partial update and refreshes the embedding when
// the text changed.
// PATCH /api/v1/memories/:id
func (s *APIV1Service) UpdateMemory(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := memoryIDFromPath(c)
	if err != nil {
		return errorJSON(c, err)
	}

	req := &UpdateMemoryRequest{}
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}

	existing, err := s.Store.GetMemory(ctx, &store.FindMemory{ID: &id})
	if err != nil {
		return errorJSON(c, err)
	}
	if existing == nil {
		return errorJSON(c, errors.Wrapf(store.ErrNotFound, "memory %d", id))
	}

	update := &store.UpdateMemory{
		ID:          id,
		Concepts:    req.Concepts,
		SourceFiles: req.SourceFiles,
	}
	if req.Type != nil {
		memoryType := store.MemoryType(*req.Type)
		update.Type = &memoryType
	}
	if req.Title != nil {
		title := s.sanitizer.Clean(*req.Title)
		update.Title = &title
	}
	if req.Content != nil {
		content := s.sanitizer.Clean(*req.Content)
		update.Content = &content
	}
	if req.Facts != nil {
		facts := make([]string, 0, len(req.Facts))
		for _, fact := range req.Facts {
			facts = append(facts, s.sanitizer.Clean(fact))
		}
		update.Facts = facts
	}
	if req.Importance != nil {
		normalized, err := store.NormalizeImportance(*req.Importance)
		if err != nil {
			return errorJSON(c, errors.Wrap(store.ErrInvalid, err.Error()))
		}
		update.Importance = &normalized
	}
	if req.Visibility != nil {
		visibility := store.Visibility(*req.Visibility)
		if visibility != store.VisibilityPublic && visibility != store.VisibilityPrivate {
			return errorJSON(c, errors.Wrapf(store.ErrInvalid, "unknown visibility %q", *req.Visibility))
		}
		update.Visibility = &visibility
	}
	if req.Phase != nil {
		update.Phase = req.Phase
	}
	if req.SessionID != nil {
		update.SessionID = req.SessionID
	}

	updated, err := s.Store.UpdateMemory(ctx, update)
	if err != nil {
		return errorJSON(c, err)
	}

	// Text changes invalidate the stored vector.
	if req.Title != nil || req.Content != nil || req.Facts != nil || req.Concepts != nil {
		if err := s.embedMemory(ctx, updated); err != nil {
			loggerFrom(ctx).Warn("failed to refresh embedding after update",
				slog.Int64(observability.LogFieldMemoryID, updated.ID),
				slog.String("error", err.Error()))
		}
	}

	return c.JSON(http.StatusOK, convertMemory(updated))
}

// DeleteMemoryResponse confirms a delete.
type DeleteMemoryResponse struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// DeleteMemory removes a memory, its embedding mirror row, and its index
// vector. Unknown ids are 404; the underlying store delete itself treats
// absence as success.
// DELETE /api/v1/memories/:id
func (s *APIV1Service) DeleteMemory(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := memoryIDFromPath(c)
	if err != nil {
		return errorJSON(c, err)
	}

	existing, err := s.Store.GetMemory(ctx, &store.FindMemory{ID: &id})
	if err != nil {
		return errorJSON(c, err)
	}
	if existing == nil {
		return errorJSON(c, errors.Wrapf(store.ErrNotFound, "memory %d", id))
	}

	if _, err := s.Store.DeleteMemory(ctx, &store.DeleteMemory{ID: &id}); err != nil {
		return errorJSON(c, err)
	}
	if s.Index != nil {
		if err := s.Index.Remove(ctx, id); err != nil {
			loggerFrom(ctx).Warn("failed to drop index vector",
				slog.Int64(observability.LogFieldMemoryID, id),
				slog.String("error", err.Error()))
		}
	}

	return c.JSON(http.StatusOK, &DeleteMemoryResponse{Deleted: true, ID: id})
}

// touchMemories bumps access tracking for records surfaced to the caller.
func (s *APIV1Service) touchMemories(ctx context.Context, ids []int64) {
	if err := s.Store.TouchMemories(ctx, ids, time.Now().Unix()); err != nil {
		loggerFrom(ctx).Warn("failed to bump access tracking", slog.String("error", err.Error()))
	}
}

// loggerFrom returns the request-scoped logger, or the default one for work
// running outside a request.
func loggerFrom(ctx context.Context) *slog.Logger {
	if reqCtx, ok := observability.FromContext(ctx); ok {
		return reqCtx.Logger
	}
	return slog.Default()
}
