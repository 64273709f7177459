package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemod/store"
)

func sampleMemory() *store.Memory {
	return &store.Memory{
		ID:          42,
		Type:        store.MemoryTypeDecision,
		Title:       "Use SQLite",
		Content:     "Chosen for local storage.",
		Facts:       []string{"single file", "no server"},
		Concepts:    []string{"database", "storage"},
		Importance:  8,
		Visibility:  store.VisibilityPublic,
		Phase:       "design",
		SessionID:   "s1",
		CreatedTs:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix(),
		AccessCount: 3,
	}
}

func TestCompileAndMatch(t *testing.T) {
	tests := []struct {
		expression string
		want       bool
	}{
		{`type == "decision"`, true},
		{`type == "note"`, false},
		{`importance >= 7`, true},
		{`importance > 8`, false},
		{`"database" in concepts`, true},
		{`"network" in concepts`, false},
		{`type == "decision" && importance >= 7`, true},
		{`phase == "design" || phase == "build"`, true},
		{`title.contains("SQLite")`, true},
		{`session_id.startsWith("s")`, true},
		{`access_count >= 3`, true},
		{`created_ts > timestamp("2025-01-01T00:00:00Z")`, true},
	}
	memory := sampleMemory()
	for _, tt := range tests {
		f, err := Compile(tt.expression)
		require.NoError(t, err, "expression %q", tt.expression)
		require.Equal(t, tt.want, f.Matches(memory), "expression %q", tt.expression)
	}
}

func TestCompileRejectsInvalid(t *testing.T) {
	// Syntax error.
	_, err := Compile(`type == `)
	require.Error(t, err)

	// Unknown field.
	_, err = Compile(`owner == "me"`)
	require.Error(t, err)

	// Non-boolean result.
	_, err = Compile(`importance + 1`)
	require.Error(t, err)
}

func TestMatchesIsReusable(t *testing.T) {
	f, err := Compile(`importance >= 5`)
	require.NoError(t, err)

	low := sampleMemory()
	low.Importance = 2
	high := sampleMemory()

	// Same compiled filter evaluates many candidates.
	require.False(t, f.Matches(low))
	require.True(t, f.Matches(high))
	require.True(t, f.Matches(high))
}
