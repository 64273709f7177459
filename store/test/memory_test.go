package test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemod/store"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	created, err := ts.CreateMemory(ctx, &store.Memory{
		Type:        store.MemoryTypeDecision,
		Title:       "Adopt WAL mode",
		Content:     "Switched SQLite to WAL so readers do not block the writer.",
		Facts:       []string{"WAL allows concurrent readers"},
		Concepts:    []string{"database"},
		SourceFiles: []string{"store/db/sqlite/sqlite.go"},
		Importance:  8,
		Visibility:  store.VisibilityPublic,
		Phase:       "implementation",
		SessionID:   "session-1",
	})
	require.NoError(t, err)
	require.Greater(t, created.ID, int64(0))
	require.NotZero(t, created.CreatedTs)

	// Round-trip
	got, err := ts.GetMemory(ctx, &store.FindMemory{ID: &created.ID})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, created.Title, got.Title)
	require.Equal(t, []string{"WAL allows concurrent readers"}, got.Facts)
	require.Equal(t, []string{"database"}, got.Concepts)
	require.Equal(t, []string{"store/db/sqlite/sqlite.go"}, got.SourceFiles)
	require.Equal(t, 8, got.Importance)
	require.Equal(t, store.VisibilityPublic, got.Visibility)
	require.Equal(t, "session-1", got.SessionID)

	// Missing id reads as nil, not an error
	missingID := created.ID + 999
	missing, err := ts.GetMemory(ctx, &store.FindMemory{ID: &missingID})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMemoryValidation(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.CreateMemory(ctx, &store.Memory{Type: "daydream", Title: "t", Content: "x"})
	require.ErrorIs(t, err, store.ErrInvalid)

	_, err = ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "   ", Content: "x"})
	require.ErrorIs(t, err, store.ErrInvalid)

	_, err = ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "t", Content: "   "})
	require.ErrorIs(t, err, store.ErrInvalid)

	_, err = ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "t", Content: "x", Importance: 11})
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestMemoryContentTruncation(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	long := strings.Repeat("a", store.MaxContentLength+500)
	created, err := ts.CreateMemory(ctx, &store.Memory{
		Type:    store.MemoryTypeNote,
		Title:   "long note",
		Content: long,
	})
	require.NoError(t, err)
	require.Len(t, []rune(created.Content), store.MaxContentLength)
	require.True(t, strings.HasSuffix(created.Content, store.TruncationMarker))
}

func TestMemoryUpdate(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	created, err := ts.CreateMemory(ctx, &store.Memory{
		Type:       store.MemoryTypeNote,
		Title:      "before",
		Content:    "original content",
		Importance: 3,
	})
	require.NoError(t, err)

	newTitle := "after"
	newImportance := 9
	now := time.Now().Unix()
	updated, err := ts.UpdateMemory(ctx, &store.UpdateMemory{
		ID:         created.ID,
		Title:      &newTitle,
		Importance: &newImportance,
		UpdatedTs:  &now,
	})
	require.NoError(t, err)
	require.Equal(t, "after", updated.Title)
	require.Equal(t, 9, updated.Importance)
	// Untouched fields survive
	require.Equal(t, "original content", updated.Content)

	// Blanking the title is rejected
	blank := "  "
	_, err = ts.UpdateMemory(ctx, &store.UpdateMemory{ID: created.ID, Title: &blank, UpdatedTs: &now})
	require.ErrorIs(t, err, store.ErrInvalid)

	// Updating a missing memory is a distinct not-found error
	missingID := created.ID + 999
	_, err = ts.UpdateMemory(ctx, &store.UpdateMemory{ID: missingID, Title: &newTitle, UpdatedTs: &now})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	created, err := ts.CreateMemory(ctx, &store.Memory{
		Type:    store.MemoryTypeNote,
		Title:   "ephemeral",
		Content: "to be deleted",
	})
	require.NoError(t, err)

	deleted, err := ts.DeleteMemory(ctx, &store.DeleteMemory{ID: &created.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	// Deleting again is a success with zero rows touched
	deleted, err = ts.DeleteMemory(ctx, &store.DeleteMemory{ID: &created.ID})
	require.NoError(t, err)
	require.Equal(t, int64(0), deleted)
}

func TestMemoryListFilters(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	seed := []*store.Memory{
		{Type: store.MemoryTypeDecision, Title: "d1", Content: "first decision", Importance: 9, SessionID: "s1", Phase: "plan"},
		{Type: store.MemoryTypeObservation, Title: "o1", Content: "an observation", Importance: 4, SessionID: "s1", Phase: "build"},
		{Type: store.MemoryTypeNote, Title: "n1", Content: "a private note", Importance: 6, Visibility: store.VisibilityPrivate, SessionID: "s2"},
	}
	for _, m := range seed {
		_, err := ts.CreateMemory(ctx, m)
		require.NoError(t, err)
	}

	list, err := ts.ListMemories(ctx, &store.FindMemory{Types: []store.MemoryType{store.MemoryTypeDecision}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "first decision", list[0].Content)

	minImportance := 5
	list, err = ts.ListMemories(ctx, &store.FindMemory{MinImportance: &minImportance})
	require.NoError(t, err)
	require.Len(t, list, 2)

	public := store.VisibilityPublic
	list, err = ts.ListMemories(ctx, &store.FindMemory{Visibility: &public})
	require.NoError(t, err)
	require.Len(t, list, 2)

	session := "s1"
	count, err := ts.CountMemories(ctx, &store.FindMemory{SessionID: &session})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	stats, err := ts.GetMemoryStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalCount)
	require.Equal(t, int64(1), stats.CountByType[store.MemoryTypeDecision])
	require.NotZero(t, stats.LastCreatedTs)
}

func TestMemorySearch(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.CreateMemory(ctx, &store.Memory{
		Type:    store.MemoryTypeDecision,
		Title:   "Database choice",
		Content: "We picked an embedded relational database for local persistence.",
	})
	require.NoError(t, err)
	_, err = ts.CreateMemory(ctx, &store.Memory{
		Type:    store.MemoryTypeNote,
		Title:   "Palette",
		Content: "Unrelated note about user interface colors.",
	})
	require.NoError(t, err)

	results, err := ts.SearchMemories(ctx, &store.SearchMemoriesOptions{Query: "embedded database", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Database choice", results[0].Memory.Title)
	require.Greater(t, results[0].Score, float64(0))

	// Queries with FTS metacharacters are sanitized, not errors
	results, err = ts.SearchMemories(ctx, &store.SearchMemoriesOptions{Query: `"embedded (database`, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Blank query returns nothing rather than erroring
	results, err = ts.SearchMemories(ctx, &store.SearchMemoriesOptions{Query: "   ", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestMemoryRetentionDeletes(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	old := time.Now().AddDate(0, 0, -120).Unix()
	recent := time.Now().Unix()

	_, err := ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "old", Content: "old", CreatedTs: old})
	require.NoError(t, err)
	_, err = ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "recent", Content: "recent", CreatedTs: recent})
	require.NoError(t, err)

	cutoff := time.Now().AddDate(0, 0, -90).Unix()
	deleted, err := ts.DeleteMemory(ctx, &store.DeleteMemory{CreatedTsBefore: &cutoff})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	// Re-running immediately deletes nothing
	deleted, err = ts.DeleteMemory(ctx, &store.DeleteMemory{CreatedTsBefore: &cutoff})
	require.NoError(t, err)
	require.Equal(t, int64(0), deleted)

	// Trim keeps the most recent rows
	for i := 0; i < 5; i++ {
		_, err := ts.CreateMemory(ctx, &store.Memory{
			Type:      store.MemoryTypeNote,
			Title:     "filler",
			Content:   "filler",
			CreatedTs: recent + int64(i) + 1,
		})
		require.NoError(t, err)
	}
	keep := 3
	deleted, err = ts.DeleteMemory(ctx, &store.DeleteMemory{KeepMostRecent: &keep})
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)

	count, err := ts.CountMemories(ctx, &store.FindMemory{})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestMemoryAccessTracking(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	created, err := ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "tracked", Content: "tracked"})
	require.NoError(t, err)

	accessedTs := time.Now().Unix() + 60
	require.NoError(t, ts.TouchMemories(ctx, []int64{created.ID}, accessedTs))

	got, err := ts.GetMemory(ctx, &store.FindMemory{ID: &created.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), got.AccessCount)
	require.Equal(t, accessedTs, got.AccessedTs)
}

func TestMemoryEmbeddingStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	memory, err := ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "vectored", Content: "with vector"})
	require.NoError(t, err)

	vector := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	upserted, err := ts.UpsertMemoryEmbedding(ctx, &store.MemoryEmbedding{
		MemoryID:  memory.ID,
		Model:     "text-embedding-3-small",
		Dims:      len(vector),
		Embedding: vector,
	})
	require.NoError(t, err)
	require.NotZero(t, upserted.CreatedTs)

	retrieved, err := ts.GetMemoryEmbedding(ctx, memory.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	require.Equal(t, vector, retrieved.Embedding)
	require.Equal(t, len(vector), retrieved.Dims)

	// Upsert replaces the previous vector
	replacement := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	_, err = ts.UpsertMemoryEmbedding(ctx, &store.MemoryEmbedding{
		MemoryID:  memory.ID,
		Model:     "text-embedding-3-small",
		Dims:      len(replacement),
		Embedding: replacement,
	})
	require.NoError(t, err)
	retrieved, err = ts.GetMemoryEmbedding(ctx, memory.ID)
	require.NoError(t, err)
	require.Equal(t, replacement, retrieved.Embedding)

	// A memory without a vector shows up for backfill
	bare, err := ts.CreateMemory(ctx, &store.Memory{Type: store.MemoryTypeNote, Title: "bare", Content: "no vector yet"})
	require.NoError(t, err)
	pending, err := ts.FindMemoriesWithoutEmbedding(ctx, &store.FindMemoriesWithoutEmbedding{Model: "text-embedding-3-small", Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, bare.ID, pending[0].ID)

	// Deleting the memory cascades to its embedding row
	_, err = ts.DeleteMemory(ctx, &store.DeleteMemory{ID: &memory.ID})
	require.NoError(t, err)
	retrieved, err = ts.GetMemoryEmbedding(ctx, memory.ID)
	require.NoError(t, err)
	require.Nil(t, retrieved)

	// Deleting an absent embedding is a success
	require.NoError(t, ts.DeleteMemoryEmbedding(ctx, memory.ID))
}
