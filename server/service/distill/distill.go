// Package distill converts raw agent events into durable memories. Each
// event yields at most one memory; filtering happens before transformation,
// and a skipped event always states its reason.
package distill

import (
	"fmt"
	"strings"

	"github.com/mnemo-labs/mnemod/server/service/privacy"
	"github.com/mnemo-labs/mnemod/store"
)

const (
	// DefaultMinImportance is the capture threshold: events whose estimated
	// importance falls below it are dropped before transformation.
	DefaultMinImportance = 3

	// decisionImportanceFloor is the minimum importance of a message that
	// carries a decision cue.
	decisionImportanceFloor = 5

	importanceFileChange = 5
	importanceCommand    = 4
	importanceOtherTool  = 3
	importanceFileRead   = 2
	importanceSearch     = 1
	importanceMessage    = 4
	importancePhase      = 5
)

// Config controls what the distiller captures.
type Config struct {
	Enabled bool
	// MinImportance drops events whose importance estimate falls below it.
	MinImportance int
	// SkipTools lists tool names that are never captured, case-insensitive.
	SkipTools []string
	// CaptureMessages enables user and assistant message capture.
	CaptureMessages bool
}

// DefaultConfig returns the capture defaults. Read and search tools fall
// below the default threshold, so only state-changing activity is kept.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MinImportance:   DefaultMinImportance,
		CaptureMessages: true,
	}
}

// Result reports the outcome of distilling one event.
type Result struct {
	Captured bool          `json:"captured"`
	Reason   string        `json:"reason,omitempty"`
	Memory   *store.Memory `json:"memory,omitempty"`
}

func skipped(reason string) *Result {
	return &Result{Reason: reason}
}

func captured(memory *store.Memory) *Result {
	return &Result{Captured: true, Memory: memory}
}

// Distiller turns raw events into memories. It holds no mutable state and
// touches no storage; persisting the produced memories is the caller's job.
type Distiller struct {
	config    Config
	sanitizer *privacy.Sanitizer
	skipTools map[string]bool
}

// New creates a Distiller with the given capture configuration.
func New(config Config) *Distiller {
	skipTools := make(map[string]bool, len(config.SkipTools))
	for _, tool := range config.SkipTools {
		skipTools[strings.ToLower(tool)] = true
	}
	return &Distiller{
		config:    config,
		sanitizer: privacy.NewSanitizer(),
		skipTools: skipTools,
	}
}

// Distill produces at most one memory from the event. The result states
// either the memory or the reason capture was skipped.
func (d *Distiller) Distill(event *RawEvent) *Result {
	if !d.config.Enabled {
		return skipped("distillation disabled")
	}

	switch event.Type {
	case EventToolUse:
		return d.distillToolUse(event)
	case EventUserMessage:
		return d.distillUserMessage(event)
	case EventAssistantMessage:
		return d.distillAssistantMessage(event)
	case EventPhaseChange:
		return d.distillPhaseChange(event)
	default:
		return skipped(fmt.Sprintf("unrecognized event type %q", event.Type))
	}
}

// DistillSession distills a whole event stream in order and returns the
// memories that survived capture filtering. Phase-change memories are
// annotated with how many events the closing phase captured.
func (d *Distiller) DistillSession(events []*RawEvent) []*store.Memory {
	var memories []*store.Memory
	capturedInPhase := 0

	for _, event := range events {
		result := d.Distill(event)
		if !result.Captured {
			continue
		}
		if event.Type == EventPhaseChange {
			if capturedInPhase > 0 {
				result.Memory.Facts = append(result.Memory.Facts,
					fmt.Sprintf("%d memories captured in the previous phase", capturedInPhase))
			}
			capturedInPhase = 0
		} else {
			capturedInPhase++
		}
		memories = append(memories, result.Memory)
	}
	return memories
}

// belowThreshold reports whether the estimate fails the capture threshold,
// with the stated reason.
func (d *Distiller) belowThreshold(importance int) (string, bool) {
	if importance < d.config.MinImportance {
		return fmt.Sprintf("importance %d below threshold %d", importance, d.config.MinImportance), true
	}
	return "", false
}

// newMemory stamps the common provenance fields from the event.
func (d *Distiller) newMemory(event *RawEvent, memoryType store.MemoryType, importance int) *store.Memory {
	memory := &store.Memory{
		Type:       memoryType,
		Importance: importance,
		Visibility: store.VisibilityPublic,
		Phase:      event.Phase,
		SessionID:  event.SessionID,
	}
	if event.Timestamp != 0 {
		memory.CreatedTs = event.Timestamp
	}
	return memory
}

// hasDecisionCue reports whether lowercased text signals a decision was made.
func hasDecisionCue(lower string) bool {
	cues := []string{
		"decided", "decision", "let's go with", "we will use", "we'll use",
		"agreed", "chose", "choose", "instead of", "settled on",
	}
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// shorten cuts text to max runes, appending an ellipsis when it was longer.
// Newlines collapse to spaces so the result stays a single line.
func shorten(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
