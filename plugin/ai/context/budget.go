package context

import "unicode/utf8"

// DefaultTokenBudget caps rendered context size in estimated tokens.
const DefaultTokenBudget = 800

// EstimateTokens estimates the token count of a string using the fixed
// four-characters-per-token heuristic, rounding up. The same rule is applied
// when packing and when asserting budget compliance, so the two never drift.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (utf8.RuneCountInString(content) + 3) / 4
}
