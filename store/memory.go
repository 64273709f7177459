package store

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// MemoryType classifies what a memory captures.
type MemoryType string

const (
	MemoryTypeObservation    MemoryType = "observation"
	MemoryTypeDecision       MemoryType = "decision"
	MemoryTypeSessionSummary MemoryType = "session_summary"
	MemoryTypeUserPrompt     MemoryType = "user_prompt"
	MemoryTypeNote           MemoryType = "note"
	MemoryTypeTodo           MemoryType = "todo"
)

// AllMemoryTypes lists every valid memory type.
var AllMemoryTypes = []MemoryType{
	MemoryTypeObservation,
	MemoryTypeDecision,
	MemoryTypeSessionSummary,
	MemoryTypeUserPrompt,
	MemoryTypeNote,
	MemoryTypeTodo,
}

// IsValidMemoryType reports whether t is a known memory type.
func IsValidMemoryType(t MemoryType) bool {
	for _, v := range AllMemoryTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Visibility controls whether a memory is returned by default.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

const (
	// MaxContentLength is the rune limit applied to memory content at write time.
	MaxContentLength = 10000
	// TruncationMarker is appended when content is cut at MaxContentLength.
	TruncationMarker = "... [truncated]"
)

// Memory represents one durable record of agent knowledge.
type Memory struct {
	ID          int64
	Type        MemoryType
	Title       string
	Content     string
	Facts       []string
	Concepts    []string
	SourceFiles []string
	Importance  int // 0-10
	Visibility  Visibility
	Phase       string
	SessionID   string
	CreatedTs   int64
	UpdatedTs   int64
	AccessedTs  int64
	AccessCount int64
}

// FindMemory is the find condition for memories.
type FindMemory struct {
	ID              *int64
	Types           []MemoryType
	MinImportance   *int
	Visibility      *Visibility
	Phase           *string
	SessionID       *string
	CreatedTsAfter  *int64
	CreatedTsBefore *int64
	Limit           int
	Offset          int
}

// UpdateMemory holds the fields of a partial update. Nil fields are untouched.
type UpdateMemory struct {
	ID          int64
	Type        *MemoryType
	Title       *string
	Content     *string
	Facts       []string
	Concepts    []string
	SourceFiles []string
	Importance  *int
	Visibility  *Visibility
	Phase       *string
	SessionID   *string
	UpdatedTs   *int64
}

// DeleteMemory is the delete condition for memories.
type DeleteMemory struct {
	ID *int64
	// CreatedTsBefore deletes all memories older than the given timestamp.
	CreatedTsBefore *int64
	// KeepMostRecent trims the table down to the given count, oldest first.
	KeepMostRecent *int
}

// MemoryStats summarizes the store contents.
type MemoryStats struct {
	TotalCount    int64
	CountByType   map[MemoryType]int64
	LastCreatedTs int64
}

// NormalizeImportance maps importance inputs onto the 0-10 integer scale.
// Values strictly between 0 and 1 are treated as a 0-1 scale and rescaled by
// ten; the boundary values 0 and 1 pass through unchanged. Returns an error
// for anything outside 0-10 after rescaling.
func NormalizeImportance(value float64) (int, error) {
	if value > 0 && value < 1 {
		value *= 10
	}
	if value < 0 || value > 10 {
		return 0, errors.Errorf("importance %v out of range 0-10", value)
	}
	return int(math.Round(value)), nil
}

// TruncateContent enforces MaxContentLength, appending TruncationMarker when
// content is cut. Operates on runes so multibyte text is never split.
func TruncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= MaxContentLength {
		return content
	}
	return string(runes[:MaxContentLength-len([]rune(TruncationMarker))]) + TruncationMarker
}

func (s *Store) CreateMemory(ctx context.Context, create *Memory) (*Memory, error) {
	if create.Type == "" {
		create.Type = MemoryTypeNote
	}
	if !IsValidMemoryType(create.Type) {
		return nil, errors.Wrapf(ErrInvalid, "unknown memory type %q", create.Type)
	}
	if strings.TrimSpace(create.Title) == "" {
		return nil, errors.Wrap(ErrInvalid, "title must not be empty")
	}
	if strings.TrimSpace(create.Content) == "" {
		return nil, errors.Wrap(ErrInvalid, "content must not be empty")
	}
	if create.Importance < 0 || create.Importance > 10 {
		return nil, errors.Wrapf(ErrInvalid, "importance %d out of range 0-10", create.Importance)
	}
	if create.Visibility == "" {
		create.Visibility = VisibilityPublic
	}
	create.Content = TruncateContent(create.Content)

	memory, err := s.driver.CreateMemory(ctx, create)
	if err != nil {
		return nil, err
	}
	return memory, nil
}

func (s *Store) GetMemory(ctx context.Context, find *FindMemory) (*Memory, error) {
	if find.ID != nil {
		if cached, ok := s.memoryCache.Get(memoryCacheKey(*find.ID)); ok {
			if memory, ok := cached.(*Memory); ok {
				return memory, nil
			}
		}
	}

	list, err := s.ListMemories(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	memory := list[0]
	s.memoryCache.Set(memoryCacheKey(memory.ID), memory)
	return memory, nil
}

func (s *Store) ListMemories(ctx context.Context, find *FindMemory) ([]*Memory, error) {
	return s.driver.ListMemories(ctx, find)
}

func (s *Store) UpdateMemory(ctx context.Context, update *UpdateMemory) (*Memory, error) {
	if update.Type != nil && !IsValidMemoryType(*update.Type) {
		return nil, errors.Wrapf(ErrInvalid, "unknown memory type %q", *update.Type)
	}
	if update.Importance != nil && (*update.Importance < 0 || *update.Importance > 10) {
		return nil, errors.Wrapf(ErrInvalid, "importance %d out of range 0-10", *update.Importance)
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, errors.Wrap(ErrInvalid, "title must not be empty")
	}
	if update.Content != nil {
		if strings.TrimSpace(*update.Content) == "" {
			return nil, errors.Wrap(ErrInvalid, "content must not be empty")
		}
		truncated := TruncateContent(*update.Content)
		update.Content = &truncated
	}

	if err := s.driver.UpdateMemory(ctx, update); err != nil {
		return nil, err
	}
	s.memoryCache.Delete(memoryCacheKey(update.ID))

	memory, err := s.GetMemory(ctx, &FindMemory{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if memory == nil {
		return nil, errors.Wrapf(ErrNotFound, "memory %d", update.ID)
	}
	return memory, nil
}

// DeleteMemory removes memories and their embedding mirror rows. Deleting a
// memory that is already absent is a success.
func (s *Store) DeleteMemory(ctx context.Context, delete *DeleteMemory) (int64, error) {
	deleted, err := s.driver.DeleteMemory(ctx, delete)
	if err != nil {
		return 0, err
	}
	if delete.ID != nil {
		s.memoryCache.Delete(memoryCacheKey(*delete.ID))
	} else {
		// Range deletes can touch anything; drop the whole cache.
		s.memoryCache.Clear()
	}
	return deleted, nil
}

func (s *Store) CountMemories(ctx context.Context, find *FindMemory) (int64, error) {
	return s.driver.CountMemories(ctx, find)
}

func (s *Store) GetMemoryStats(ctx context.Context) (*MemoryStats, error) {
	return s.driver.GetMemoryStats(ctx)
}

// TouchMemories bumps access tracking for memories surfaced to a caller.
// Failures are the caller's to log; reads must not fail on tracking.
func (s *Store) TouchMemories(ctx context.Context, ids []int64, accessedTs int64) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		s.memoryCache.Delete(memoryCacheKey(id))
	}
	return s.driver.TouchMemories(ctx, ids, accessedTs)
}
