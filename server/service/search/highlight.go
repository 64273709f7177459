package search

import (
	"sort"
	"strings"
)

// Highlight marks one matched span inside content or a snippet.
// Positions are rune offsets.
type Highlight struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	MatchedText string `json:"matchedText"`
}

// Snippet is a content excerpt with highlight positions re-based onto it.
type Snippet struct {
	Text       string      `json:"text"`
	Highlights []Highlight `json:"highlights"`
}

// Highlighter computes query-match snippets for search results.
type Highlighter struct {
	tokenizer *Tokenizer
	extractor *SnippetExtractor
}

// NewHighlighter creates a new Highlighter instance.
func NewHighlighter() *Highlighter {
	return &Highlighter{
		tokenizer: NewTokenizer(),
		extractor: NewSnippetExtractor(),
	}
}

// SnippetFor extracts a snippet of content centered on the earliest query
// match. contextChars <= 0 uses the extractor default.
func (h *Highlighter) SnippetFor(query, content string, contextChars int) Snippet {
	tokens := h.tokenizer.Tokenize(query)
	matches := h.findMatches(content, tokens)
	text, highlights := h.extractor.ExtractSnippet(content, matches, &ExtractOptions{
		ContextChars: contextChars,
		AddEllipsis:  true,
	})
	return Snippet{Text: text, Highlights: highlights}
}

// findMatches finds all token occurrences in content, rune-indexed,
// position-sorted, overlaps removed.
func (h *Highlighter) findMatches(content string, tokens []string) []Highlight {
	if len(tokens) == 0 {
		return nil
	}

	var matches []Highlight
	contentRunes := []rune(content)
	contentLen := len(contentRunes)

	for _, token := range tokens {
		tokenRunes := []rune(token)
		tokenLen := len(tokenRunes)
		if tokenLen == 0 {
			continue
		}

		// Sliding window over runes keeps positions aligned with the
		// original text even when lowercasing changes byte lengths.
		limit := contentLen - tokenLen
		for i := 0; i <= limit; i++ {
			window := strings.ToLower(string(contentRunes[i : i+tokenLen]))
			if window == token {
				matches = append(matches, Highlight{
					Start:       i,
					End:         i + tokenLen,
					MatchedText: string(contentRunes[i : i+tokenLen]),
				})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})

	return removeOverlaps(matches)
}

// removeOverlaps removes overlapping highlights, keeping the earlier ones.
func removeOverlaps(matches []Highlight) []Highlight {
	if len(matches) <= 1 {
		return matches
	}

	result := make([]Highlight, 0, len(matches))
	result = append(result, matches[0])

	for i := 1; i < len(matches); i++ {
		last := result[len(result)-1]
		if matches[i].Start >= last.End {
			result = append(result, matches[i])
		}
	}

	return result
}
