package test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/internal/version"
	"github.com/mnemo-labs/mnemod/store"
	"github.com/mnemo-labs/mnemod/store/db"
)

// GetTestingProfile returns a profile backed by a throwaway SQLite file.
func GetTestingProfile(t *testing.T) *profile.Profile {
	dir := t.TempDir()
	mode := "dev"
	return &profile.Profile{
		Mode:          mode,
		Driver:        "sqlite",
		Data:          dir,
		DSN:           filepath.Join(dir, fmt.Sprintf("mnemod_%s.db", mode)),
		Version:       version.GetCurrentVersion(mode),
		EmbeddingDims: 8,
		ContextBudget: 800,
	}
}

// NewTestingStore creates a migrated store for tests and closes it on cleanup.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	testingProfile := GetTestingProfile(t)
	dbDriver, err := db.NewDBDriver(testingProfile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	storeInstance := store.New(dbDriver, testingProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}

	t.Cleanup(func() {
		if err := storeInstance.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})
	return storeInstance
}
