package search

import (
	"strings"
	"unicode"
)

// SnippetExtractor cuts a context window out of memory content around
// matched positions, adjusted to word boundaries.
type SnippetExtractor struct {
	defaultContextChars int
	maxContextChars     int
}

// NewSnippetExtractor creates a SnippetExtractor with default settings.
func NewSnippetExtractor() *SnippetExtractor {
	return &SnippetExtractor{
		defaultContextChars: 50,
		maxContextChars:     200,
	}
}

// ExtractOptions configures snippet extraction behavior.
type ExtractOptions struct {
	ContextChars int  // Characters to include before/after match center
	AddEllipsis  bool // Whether to add "..." for truncated content
}

// DefaultExtractOptions returns sensible defaults.
func DefaultExtractOptions() *ExtractOptions {
	return &ExtractOptions{
		ContextChars: 50,
		AddEllipsis:  true,
	}
}

// ExtractSnippet extracts a context window around the first match and
// returns the snippet plus highlight positions re-based onto it. With no
// matches the snippet is the start of the content.
func (e *SnippetExtractor) ExtractSnippet(
	content string,
	matches []Highlight,
	opts *ExtractOptions,
) (string, []Highlight) {
	if opts == nil {
		opts = DefaultExtractOptions()
	}

	contextChars := opts.ContextChars
	if contextChars <= 0 {
		contextChars = e.defaultContextChars
	}
	if contextChars > e.maxContextChars {
		contextChars = e.maxContextChars
	}

	contentRunes := []rune(content)
	contentLen := len(contentRunes)

	if contentLen == 0 {
		return "", nil
	}

	if len(matches) == 0 {
		return e.extractFromStart(contentRunes, contextChars*2, opts.AddEllipsis), nil
	}

	// The earliest match centers the window; matches are position-sorted.
	center := matches[0].Start
	start, end := e.calculateWindow(center, contentLen, contextChars)

	start = e.adjustToWordBoundary(contentRunes, start, false)
	end = e.adjustToWordBoundary(contentRunes, end, true)

	snippet, prefixLen := e.buildSnippet(contentRunes, start, end, opts.AddEllipsis)
	adjusted := e.adjustMatchPositions(matches, start, end, prefixLen)

	return snippet, adjusted
}

// extractFromStart extracts from the beginning when no matches exist.
func (e *SnippetExtractor) extractFromStart(runes []rune, maxLen int, addEllipsis bool) string {
	runeLen := len(runes)
	end := maxLen
	if end > runeLen {
		end = runeLen
	}

	end = e.adjustToWordBoundary(runes, end, true)

	snippet := string(runes[:end])
	if addEllipsis && end < runeLen {
		snippet += "..."
	}
	return snippet
}

// calculateWindow computes the start and end positions for the snippet
// window, shifting it to stay inside the content.
func (e *SnippetExtractor) calculateWindow(center, contentLen, contextChars int) (start, end int) {
	start = center - contextChars
	end = center + contextChars

	if start < 0 {
		end += -start
		start = 0
	}
	if end > contentLen {
		start -= end - contentLen
		end = contentLen
	}
	if start < 0 {
		start = 0
	}

	return start, end
}

// adjustToWordBoundary moves pos to the nearest separator: backward for
// start positions, forward for end positions. Scans at most a few
// characters so a separator-free run does not distort the window.
func (e *SnippetExtractor) adjustToWordBoundary(runes []rune, pos int, isEnd bool) int {
	runeLen := len(runes)
	if pos <= 0 {
		return 0
	}
	if pos >= runeLen {
		return runeLen
	}

	maxAdjust := 10

	if isEnd {
		for i := pos; i < runeLen && i < pos+maxAdjust; i++ {
			if e.isSeparator(runes[i]) {
				return i
			}
		}
	} else {
		for i := pos - 1; i >= 0 && i >= pos-maxAdjust; i-- {
			if e.isSeparator(runes[i]) {
				return i + 1
			}
		}
	}

	return pos
}

// isSeparator returns true if the rune is a word separator.
func (e *SnippetExtractor) isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}

	separators := []rune{
		'。', '，', '、', '；', '：', '！', '？', '…',
		'.', ',', '!', '?', ';', ':',
	}
	for _, sep := range separators {
		if r == sep {
			return true
		}
	}
	return false
}

// buildSnippet constructs the final snippet string with optional ellipsis,
// returning the prefix length added before the window.
func (e *SnippetExtractor) buildSnippet(runes []rune, start, end int, addEllipsis bool) (string, int) {
	runeLen := len(runes)
	var builder strings.Builder
	prefixLen := 0

	if addEllipsis && start > 0 {
		builder.WriteString("...")
		prefixLen = 3
	}

	builder.WriteString(string(runes[start:end]))

	if addEllipsis && end < runeLen {
		builder.WriteString("...")
	}

	return builder.String(), prefixLen
}

// adjustMatchPositions re-bases highlight positions onto the snippet,
// dropping matches outside the window.
func (e *SnippetExtractor) adjustMatchPositions(
	matches []Highlight,
	windowStart, windowEnd, prefixLen int,
) []Highlight {
	adjusted := make([]Highlight, 0, len(matches))

	for _, m := range matches {
		if m.Start >= windowStart && m.End <= windowEnd {
			adjusted = append(adjusted, Highlight{
				Start:       m.Start - windowStart + prefixLen,
				End:         m.End - windowStart + prefixLen,
				MatchedText: m.MatchedText,
			})
		}
	}

	return adjusted
}
