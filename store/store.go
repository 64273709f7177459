package store

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/store/cache"
)

// ErrNotFound classifies lookups for records that do not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalid classifies rejected writes; the message carries the reason.
var ErrInvalid = errors.New("invalid argument")

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Caches
	memoryCache *cache.Cache // cache for memories by id
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	// Default cache settings
	cacheConfig := cache.Config{
		DefaultTTL: 10 * time.Minute,
		MaxItems:   1000,
	}

	store := &Store{
		driver:      driver,
		profile:     profile,
		cacheConfig: cacheConfig,
		memoryCache: cache.New(cacheConfig),
	}

	return store
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.memoryCache.Close()
	return s.driver.Close()
}

func memoryCacheKey(id int64) string {
	return fmt.Sprintf("memory:%d", id)
}
