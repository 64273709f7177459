// Package privacy redacts secrets, strips marked private sections, and
// enforces retention limits over the memory store.
package privacy

import (
	"strings"

	"github.com/mnemo-labs/mnemod/store"
)

// SessionPlaceholder replaces session ids when a memory leaves its original
// trust boundary.
const SessionPlaceholder = "anonymous"

// Sanitizer applies the redaction pipeline. It holds no mutable state, so a
// single instance is safe for concurrent use.
type Sanitizer struct{}

// NewSanitizer creates a Sanitizer.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// StripPrivateTags removes every marked private span, replacing each with
// the redaction token. No substring of the span survives.
func (s *Sanitizer) StripPrivateTags(text string) string {
	stripped := privateSpanPattern.ReplaceAllString(text, RedactionToken)
	return collapseRedactions(stripped)
}

// Sanitize replaces every secret-pattern match with the redaction token.
// Applying it twice yields the same output as applying it once.
func (s *Sanitizer) Sanitize(text string) string {
	for _, pattern := range secretPatterns {
		text = pattern.re.ReplaceAllString(text, RedactionToken)
	}
	return collapseRedactions(text)
}

// ContainsSensitiveData probes the text against the secret pattern table
// without modifying it.
func (s *Sanitizer) ContainsSensitiveData(text string) bool {
	for _, pattern := range secretPatterns {
		if pattern.re.MatchString(text) {
			return true
		}
	}
	return false
}

// ValidationResult reports what storage validation did to the input.
type ValidationResult struct {
	Valid            bool
	Warnings         []string
	SanitizedContent string
}

// ValidateForStorage runs the full pipeline on content bound for the store:
// private spans are stripped, secrets redacted, and overlong content
// truncated. Every corrective action is recorded as a warning. Valid is
// false only when no usable content remains.
func (s *Sanitizer) ValidateForStorage(text string) *ValidationResult {
	result := &ValidationResult{}
	content := text

	if privateSpanPattern.MatchString(content) {
		content = s.StripPrivateTags(content)
		result.Warnings = append(result.Warnings, "removed private sections")
	}
	if s.ContainsSensitiveData(content) {
		content = s.Sanitize(content)
		result.Warnings = append(result.Warnings, "redacted sensitive data")
	}
	if truncated := store.TruncateContent(content); truncated != content {
		content = truncated
		result.Warnings = append(result.Warnings, "truncated overlong content")
	}

	result.SanitizedContent = content
	result.Valid = strings.TrimSpace(content) != ""
	return result
}

// Clean composes strip and sanitize for text crossing a trust boundary.
func (s *Sanitizer) Clean(text string) string {
	return s.Sanitize(s.StripPrivateTags(text))
}

// AnonymizeMemory returns a copy safe to share outside the original trust
// boundary: title, content and facts are sanitized and the session id is
// replaced with a fixed placeholder. All other fields carry over unchanged.
func (s *Sanitizer) AnonymizeMemory(memory *store.Memory) *store.Memory {
	anonymized := *memory
	anonymized.Title = s.Clean(memory.Title)
	anonymized.Content = s.Clean(memory.Content)

	anonymized.Facts = make([]string, len(memory.Facts))
	for i, fact := range memory.Facts {
		anonymized.Facts[i] = s.Clean(fact)
	}
	anonymized.Concepts = append([]string(nil), memory.Concepts...)
	anonymized.SourceFiles = append([]string(nil), memory.SourceFiles...)

	if anonymized.SessionID != "" {
		anonymized.SessionID = SessionPlaceholder
	}
	return &anonymized
}

func collapseRedactions(text string) string {
	return redactionRunPattern.ReplaceAllString(text, RedactionToken)
}
