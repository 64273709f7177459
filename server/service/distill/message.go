package distill

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mnemo-labs/mnemod/store"
)

const (
	// minAssistantMessageLength rejects short assistant replies as not
	// noteworthy.
	minAssistantMessageLength = 100
	// maxMessageContent caps how much of a message body is kept.
	maxMessageContent = 2000
	maxTitleLength    = 100
)

// conceptVocabulary maps trigger keywords onto concept tags. Concepts come
// from this fixed table, scanned over the lowercased text, not from free-form
// extraction.
var conceptVocabulary = map[string]string{
	"bug":           "bug",
	"error":         "bug",
	"crash":         "bug",
	"fix":           "bug",
	"test":          "testing",
	"coverage":      "testing",
	"refactor":      "refactoring",
	"performance":   "performance",
	"slow":          "performance",
	"optimize":      "performance",
	"database":      "database",
	"sqlite":        "database",
	"sql":           "database",
	"migration":     "database",
	"api":           "api",
	"endpoint":      "api",
	"http":          "api",
	"deploy":        "deployment",
	"release":       "deployment",
	"security":      "security",
	"auth":          "security",
	"secret":        "security",
	"config":        "configuration",
	"configuration": "configuration",
	"search":        "search",
	"index":         "search",
	"embedding":     "embedding",
	"vector":        "embedding",
	"decision":      "decision",
	"design":        "design",
	"architecture":  "design",
	"document":      "documentation",
	"docs":          "documentation",
}

func (d *Distiller) distillUserMessage(event *RawEvent) *Result {
	if !d.config.CaptureMessages {
		return skipped("message capture disabled")
	}
	payload, err := event.messagePayload()
	if err != nil {
		return skipped(fmt.Sprintf("invalid user_message payload: %v", err))
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return skipped("empty message")
	}

	lower := strings.ToLower(text)
	importance := importanceMessage
	if hasDecisionCue(lower) && importance < decisionImportanceFloor {
		importance = decisionImportanceFloor
	}
	if reason, below := d.belowThreshold(importance); below {
		return skipped(reason)
	}

	memory := d.newMemory(event, store.MemoryTypeUserPrompt, importance)
	memory.Title = d.sanitizer.Clean(shorten(firstSentence(text), maxTitleLength))
	memory.Content = d.sanitizer.Clean(truncateRunes(text, maxMessageContent))
	memory.Concepts = scanConcepts(lower)
	return captured(memory)
}

func (d *Distiller) distillAssistantMessage(event *RawEvent) *Result {
	if !d.config.CaptureMessages {
		return skipped("message capture disabled")
	}
	payload, err := event.messagePayload()
	if err != nil {
		return skipped(fmt.Sprintf("invalid assistant_message payload: %v", err))
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return skipped("empty message")
	}
	if utf8.RuneCountInString(text) < minAssistantMessageLength {
		return skipped("message too short to be noteworthy")
	}

	lower := strings.ToLower(text)
	memoryType := store.MemoryTypeNote
	importance := importanceMessage
	if hasDecisionCue(lower) {
		memoryType = store.MemoryTypeDecision
		if importance < decisionImportanceFloor {
			importance = decisionImportanceFloor
		}
	}
	if reason, below := d.belowThreshold(importance); below {
		return skipped(reason)
	}

	memory := d.newMemory(event, memoryType, importance)
	memory.Title = d.sanitizer.Clean(shorten(firstSentence(text), maxTitleLength))
	memory.Content = d.sanitizer.Clean(truncateRunes(text, maxMessageContent))
	memory.Concepts = scanConcepts(lower)
	for _, fact := range ExtractFacts(text) {
		memory.Facts = append(memory.Facts, d.sanitizer.Clean(fact))
	}
	return captured(memory)
}

// firstSentence cuts at the first clause terminator: period, question mark,
// exclamation mark, colon, or line break.
func firstSentence(text string) string {
	if idx := strings.IndexAny(text, ".?!:\n"); idx > 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

// scanConcepts runs the fixed vocabulary over lowercased text and returns
// the matched concepts sorted for determinism.
func scanConcepts(lower string) []string {
	matched := make(map[string]bool)
	for keyword, concept := range conceptVocabulary {
		if strings.Contains(lower, keyword) {
			matched[concept] = true
		}
	}
	if len(matched) == 0 {
		return nil
	}
	concepts := make([]string, 0, len(matched))
	for concept := range matched {
		concepts = append(concepts, concept)
	}
	sort.Strings(concepts)
	return concepts
}

// truncateRunes cuts text to max runes without a marker.
func truncateRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
