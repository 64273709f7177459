// Package search enriches retrieval results: highlighted snippets for
// matched content and related-memory lookups.
package search

import (
	"strings"
	"unicode"
)

// Tokenizer splits query text into highlightable tokens. CJK characters
// tokenize individually; everything else splits on whitespace and
// punctuation.
type Tokenizer struct {
	// minTokenLen is the minimum length for a token to be considered valid
	minTokenLen int
}

// NewTokenizer creates a new Tokenizer instance.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		minTokenLen: 1,
	}
}

// Tokenize splits the input text into deduplicated lowercase tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	text = strings.TrimSpace(text)
	var tokens []string
	seen := make(map[string]bool)

	flush := func(word *strings.Builder) {
		if word.Len() == 0 {
			return
		}
		token := strings.ToLower(word.String())
		if len(token) >= t.minTokenLen && !seen[token] {
			tokens = append(tokens, token)
			seen[token] = true
		}
		word.Reset()
	}

	var currentWord strings.Builder
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush(&currentWord)
			char := string(r)
			if !seen[char] {
				tokens = append(tokens, char)
				seen[char] = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			currentWord.WriteRune(r)
		default:
			flush(&currentWord)
		}
	}
	flush(&currentWord)

	return tokens
}
