package privacy

import (
	"context"
	"testing"
	"time"

	"github.com/mnemo-labs/mnemod/plugin/ai/vector"
	"github.com/mnemo-labs/mnemod/store"
	"github.com/mnemo-labs/mnemod/store/test"
)

func seedMemory(ctx context.Context, t *testing.T, s *store.Store, index *vector.MockIndex, title string, createdTs int64) *store.Memory {
	t.Helper()
	memory, err := s.CreateMemory(ctx, &store.Memory{
		Type:      store.MemoryTypeNote,
		Title:     title,
		Content:   "content for " + title,
		CreatedTs: createdTs,
	})
	if err != nil {
		t.Fatalf("failed to create memory %q: %v", title, err)
	}
	if index != nil {
		if err := index.Upsert(ctx, memory.ID, []float32{1, 0}); err != nil {
			t.Fatalf("failed to index memory %q: %v", title, err)
		}
	}
	return memory
}

func TestRetention_ApplyRetentionPolicy(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	index := vector.NewMockIndex(2)

	now := time.Now().Unix()
	seedMemory(ctx, t, ts, index, "ancient", time.Now().AddDate(0, 0, -120).Unix())
	fresh := seedMemory(ctx, t, ts, index, "fresh", now)

	retention := NewRetention(ts, index, RetentionConfig{Enabled: true, Days: 90})

	deleted, err := retention.ApplyRetentionPolicy(ctx)
	if err != nil {
		t.Fatalf("ApplyRetentionPolicy failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	remaining, err := ts.ListMemories(ctx, &store.FindMemory{})
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != fresh.ID {
		t.Errorf("remaining = %v, want only %q", remaining, fresh.Title)
	}
	if index.Count() != 1 {
		t.Errorf("index count = %d, want 1", index.Count())
	}

	// A second pass finds nothing left to expire.
	deleted, err = retention.ApplyRetentionPolicy(ctx)
	if err != nil {
		t.Fatalf("second ApplyRetentionPolicy failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("second pass deleted = %d, want 0", deleted)
	}
}

func TestRetention_ApplyMaxLimit(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	index := vector.NewMockIndex(2)

	now := time.Now().Unix()
	for i, title := range []string{"first", "second", "third", "fourth", "fifth"} {
		seedMemory(ctx, t, ts, index, title, now-int64(50-10*i))
	}

	retention := NewRetention(ts, index, RetentionConfig{Enabled: true, Max: 3})

	deleted, err := retention.ApplyMaxLimit(ctx)
	if err != nil {
		t.Fatalf("ApplyMaxLimit failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	remaining, err := ts.ListMemories(ctx, &store.FindMemory{})
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("remaining = %d memories, want 3", len(remaining))
	}
	// Newest-first listing; the two oldest are gone.
	wantTitles := []string{"fifth", "fourth", "third"}
	for i, memory := range remaining {
		if memory.Title != wantTitles[i] {
			t.Errorf("remaining[%d] = %q, want %q", i, memory.Title, wantTitles[i])
		}
	}
	if index.Count() != 3 {
		t.Errorf("index count = %d, want 3", index.Count())
	}

	deleted, err = retention.ApplyMaxLimit(ctx)
	if err != nil {
		t.Fatalf("second ApplyMaxLimit failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("second pass deleted = %d, want 0", deleted)
	}
}

func TestRetention_RunMaintenance(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	index := vector.NewMockIndex(2)

	now := time.Now().Unix()
	seedMemory(ctx, t, ts, index, "expired", time.Now().AddDate(0, 0, -100).Unix())
	for i, title := range []string{"a", "b", "c", "d"} {
		seedMemory(ctx, t, ts, index, title, now-int64(40-10*i))
	}

	retention := NewRetention(ts, index, RetentionConfig{Enabled: true, Days: 90, Max: 3})

	result, err := retention.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}
	if result.DeletedByAge != 1 {
		t.Errorf("DeletedByAge = %d, want 1", result.DeletedByAge)
	}
	if result.DeletedByLimit != 1 {
		t.Errorf("DeletedByLimit = %d, want 1", result.DeletedByLimit)
	}
	if result.Reason != "" {
		t.Errorf("Reason = %q, want empty", result.Reason)
	}

	count, err := ts.CountMemories(ctx, &store.FindMemory{})
	if err != nil {
		t.Fatalf("CountMemories failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if index.Count() != 3 {
		t.Errorf("index count = %d, want 3", index.Count())
	}
}

func TestRetention_Disabled(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)

	old := time.Now().AddDate(0, 0, -365).Unix()
	seedMemory(ctx, t, ts, nil, "kept despite age", old)
	seedMemory(ctx, t, ts, nil, "also kept", old+1)

	retention := NewRetention(ts, nil, RetentionConfig{Enabled: false, Days: 90, Max: 1})

	result, err := retention.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}
	if result.DeletedByAge != 0 || result.DeletedByLimit != 0 {
		t.Errorf("disabled retention deleted memories: %+v", result)
	}
	if result.Reason != "disabled" {
		t.Errorf("Reason = %q, want %q", result.Reason, "disabled")
	}

	count, err := ts.CountMemories(ctx, &store.FindMemory{})
	if err != nil {
		t.Fatalf("CountMemories failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestRetention_NilRemover(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)

	seedMemory(ctx, t, ts, nil, "doomed", time.Now().AddDate(0, 0, -100).Unix())

	retention := NewRetention(ts, nil, RetentionConfig{Enabled: true, Days: 90})
	deleted, err := retention.ApplyRetentionPolicy(ctx)
	if err != nil {
		t.Fatalf("ApplyRetentionPolicy failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
