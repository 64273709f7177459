package privacy

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/store"
)

// Remover drops index vectors for deleted memories.
type Remover interface {
	Remove(ctx context.Context, id int64) error
}

// RetentionConfig bounds the store's age and size.
type RetentionConfig struct {
	Enabled bool
	Days    int
	Max     int
}

// DefaultRetentionConfig keeps 90 days of memories, at most 10000.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled: true,
		Days:    90,
		Max:     10000,
	}
}

// RetentionResult summarizes one maintenance pass.
type RetentionResult struct {
	DeletedByAge   int64  `json:"deletedByAge"`
	DeletedByLimit int64  `json:"deletedByLimit"`
	Reason         string `json:"reason,omitempty"`
}

// Retention applies age and size limits to the memory store, keeping the
// vector index in sync with what it deletes.
type Retention struct {
	store   *store.Store
	remover Remover
	config  RetentionConfig
}

// NewRetention creates a Retention. The remover may be nil when no vector
// index is configured.
func NewRetention(s *store.Store, remover Remover, config RetentionConfig) *Retention {
	return &Retention{
		store:   s,
		remover: remover,
		config:  config,
	}
}

// ApplyRetentionPolicy deletes memories older than the configured window and
// returns the count deleted. Disabled retention deletes nothing.
func (r *Retention) ApplyRetentionPolicy(ctx context.Context) (int64, error) {
	if !r.config.Enabled || r.config.Days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -r.config.Days).Unix()

	// Collect ids before the range delete so index vectors can follow.
	doomed, err := r.store.ListMemories(ctx, &store.FindMemory{CreatedTsBefore: &cutoff})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list expired memories")
	}

	deleted, err := r.store.DeleteMemory(ctx, &store.DeleteMemory{CreatedTsBefore: &cutoff})
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired memories")
	}

	r.removeVectors(ctx, doomed)
	return deleted, nil
}

// ApplyMaxLimit trims the store down to the configured maximum, oldest rows
// first, and returns the count deleted.
func (r *Retention) ApplyMaxLimit(ctx context.Context) (int64, error) {
	if !r.config.Enabled || r.config.Max <= 0 {
		return 0, nil
	}

	total, err := r.store.CountMemories(ctx, &store.FindMemory{})
	if err != nil {
		return 0, errors.Wrap(err, "failed to count memories")
	}
	if total <= int64(r.config.Max) {
		return 0, nil
	}

	// Listing is newest-first, so everything past the cap is the excess.
	doomed, err := r.store.ListMemories(ctx, &store.FindMemory{
		Limit:  int(total) - r.config.Max,
		Offset: r.config.Max,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list excess memories")
	}

	deleted, err := r.store.DeleteMemory(ctx, &store.DeleteMemory{KeepMostRecent: &r.config.Max})
	if err != nil {
		return 0, errors.Wrap(err, "failed to trim memories")
	}

	r.removeVectors(ctx, doomed)
	return deleted, nil
}

// RunMaintenance applies both limits and returns the combined result.
// Disabled retention reports zero deletions with reason "disabled"; callers
// must not treat that as an error.
func (r *Retention) RunMaintenance(ctx context.Context) (*RetentionResult, error) {
	if !r.config.Enabled {
		return &RetentionResult{Reason: "disabled"}, nil
	}

	byAge, err := r.ApplyRetentionPolicy(ctx)
	if err != nil {
		return nil, err
	}
	byLimit, err := r.ApplyMaxLimit(ctx)
	if err != nil {
		return nil, err
	}
	return &RetentionResult{
		DeletedByAge:   byAge,
		DeletedByLimit: byLimit,
	}, nil
}

// removeVectors drops index entries for deleted memories. The index is a
// rebuildable cache, so failures are logged rather than failing the pass.
func (r *Retention) removeVectors(ctx context.Context, memories []*store.Memory) {
	if r.remover == nil {
		return
	}
	for _, memory := range memories {
		if err := r.remover.Remove(ctx, memory.ID); err != nil {
			slog.Warn("failed to drop vector for deleted memory",
				slog.Int64("memory", memory.ID),
				slog.String("error", err.Error()))
		}
	}
}
