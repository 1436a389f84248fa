package llm

import "strings"

// EstimateTokens heuristically estimates the token count of s without a
// model-specific tokenizer: word count times 1.33, or character count
// divided by 4, whichever is larger. Grounded on the teacher's
// internal/tokenutil/tokenutil.go heuristic.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.Fields(s))
	byWords := int(float64(words) * 1.33)
	byChars := len(s) / 4
	if byWords > byChars {
		return byWords
	}
	return byChars
}
