package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/plugin/ai"
	"github.com/mnemo-labs/mnemod/plugin/ai/vector"
	"github.com/mnemo-labs/mnemod/server/retrieval"
	"github.com/mnemo-labs/mnemod/server/stats"
	"github.com/mnemo-labs/mnemod/store"
	storetest "github.com/mnemo-labs/mnemod/store/test"
)

const testDims = 8

func newTestService(ctx context.Context, t *testing.T) (*APIV1Service, *echo.Echo) {
	t.Helper()

	ts := storetest.NewTestingStore(ctx, t)
	embedder := ai.NewHashEmbedder(testDims)
	index := vector.NewMockIndex(testDims)
	collector := stats.NewCollector()
	engine := retrieval.NewEngine(ts, embedder, index, collector)

	service := NewAPIV1Service(&profile.Profile{
		Mode:          "dev",
		Version:       "0.1.0",
		ContextBudget: 800,
	}, ts, engine, embedder, index, collector)

	echoServer := echo.New()
	service.Register(echoServer)
	return service, echoServer
}

func doJSON(t *testing.T, echoServer *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	echoServer.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	t.Helper()

	decoded := new(T)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), decoded))
	return decoded
}

func TestCreateMemory(t *testing.T) {
	ctx := context.Background()
	service, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories", map[string]any{
		"type":       "decision",
		"title":      "Use SQLite",
		"content":    `api_key="abc123" chosen for local storage`,
		"importance": 0.8,
		"concepts":   []string{"storage"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeJSON[Memory](t, rec)
	require.NotZero(t, created.ID)
	require.Equal(t, "decision", created.Type)
	require.Equal(t, 8, created.Importance)
	require.Contains(t, created.Content, "[REDACTED]")
	require.NotContains(t, created.Content, "abc123")
	require.Equal(t, "public", created.Visibility)
	require.False(t, created.CreatedAt.IsZero())

	// Single create embeds before responding.
	embedding, err := service.Store.GetMemoryEmbedding(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, embedding)
	require.Equal(t, 1, service.Index.Count())

	rec = doJSON(t, echoServer, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeJSON[Memory](t, rec)
	require.Equal(t, created.ID, fetched.ID)
	require.Equal(t, created.Content, fetched.Content)
}

func TestCreateMemory_Validation(t *testing.T) {
	ctx := context.Background()
	_, echoServer := newTestService(ctx, t)

	for name, body := range map[string]map[string]any{
		"missing title":           {"content": "no title"},
		"missing content":         {"title": "no content"},
		"unknown type":            {"type": "ramble", "title": "t", "content": "c"},
		"unknown visibility":      {"title": "t", "content": "c", "visibility": "secret"},
		"importance out of range": {"title": "t", "content": "c", "importance": 42},
	} {
		rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories", body)
		require.Equalf(t, http.StatusBadRequest, rec.Code, "case %q", name)
	}
}

func TestCreateMemory_DefaultsImportance(t *testing.T) {
	ctx := context.Background()
	_, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories", map[string]any{
		"title":   "defaulted",
		"content": "importance omitted",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[Memory](t, rec)
	require.Equal(t, defaultImportance, created.Importance)
	require.Equal(t, "note", created.Type)
}

func TestCreateMemoryBatch(t *testing.T) {
	ctx := context.Background()
	service, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories/batch", map[string]any{
		"memories": []map[string]any{
			{"title": "first", "content": "content one", "type": "note"},
			{"title": "second", "content": "content two", "type": "observation"},
			{"title": "third", "content": "content three", "type": "todo"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	response := decodeJSON[CreateMemoryBatchResponse](t, rec)
	require.Equal(t, 3, response.Count)
	require.Len(t, response.Memories, 3)

	// Embeddings settle in the background.
	service.DrainWrites()
	require.Equal(t, 3, service.Index.Count())
}

func TestCreateMemoryBatch_InvalidEntryRejectsAll(t *testing.T) {
	ctx := context.Background()
	service, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories/batch", map[string]any{
		"memories": []map[string]any{
			{"title": "fine", "content": "valid"},
			{"title": "broken", "content": "bad importance", "importance": 99},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	total, err := service.Store.CountMemories(ctx, &store.FindMemory{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestCreateMemoryBatch_Empty(t *testing.T) {
	ctx := context.Background()
	_, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories/batch", map[string]any{
		"memories": []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMemory_Errors(t *testing.T) {
	ctx := context.Background()
	_, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodGet, "/api/v1/memories/9999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, echoServer, http.MethodGet, "/api/v1/memories/notanid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMemory(t *testing.T) {
	ctx := context.Background()
	_, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories", map[string]any{
		"title":   "original",
		"content": "original content",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[Memory](t, rec)

	rec = doJSON(t, echoServer, http.MethodPatch, fmt.Sprintf("/api/v1/memories/%d", created.ID), map[string]any{
		"content":    "password=hunter2 rotated",
		"importance": 0.3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeJSON[Memory](t, rec)

	require.Equal(t, "original", updated.Title)
	require.Contains(t, updated.Content, "[REDACTED]")
	require.NotContains(t, updated.Content, "hunter2")
	require.Equal(t, 3, updated.Importance)
}

func TestUpdateMemory_Errors(t *testing.T) {
	ctx := context.Background()
	_, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPatch, "/api/v1/memories/424242", map[string]any{
		"title": "ghost",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, echoServer, http.MethodPost, "/api/v1/memories", map[string]any{
		"title":   "target",
		"content": "content",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[Memory](t, rec)

	rec = doJSON(t, echoServer, http.MethodPatch, fmt.Sprintf("/api/v1/memories/%d", created.ID), map[string]any{
		"importance": 11,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMemory(t *testing.T) {
	ctx := context.Background()
	service, echoServer := newTestService(ctx, t)

	rec := doJSON(t, echoServer, http.MethodPost, "/api/v1/memories", map[string]any{
		"title":   "doomed",
		"content": "short-lived",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[Memory](t, rec)

	rec = doJSON(t, echoServer, http.MethodDelete, fmt.Sprintf("/api/v1/memories/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeJSON[DeleteMemoryResponse](t, rec)
	require.True(t, deleted.Deleted)
	require.Equal(t, created.ID, deleted.ID)

	// Both sides are gone: the record, the mirror row, the index vector.
	rec = doJSON(t, echoServer, http.MethodGet, fmt.Sprintf("/api/v1/memories/%d", created.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	embedding, err := service.Store.GetMemoryEmbedding(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, embedding)
	require.Zero(t, service.Index.Count())

	rec = doJSON(t, echoServer, http.MethodDelete, fmt.Sprintf("/api/v1/memories/%d", created.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
