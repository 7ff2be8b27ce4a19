package task

import "strings"

// EstimateTokens approximates the token count of a text. It blends a
// character-based estimate (~4 chars per token) with a word-based one
// (~1.3 tokens per word) and takes the larger, which stays monotonic
// in input length and is stable across runs.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byChars := (len(text) + 3) / 4
	words := len(strings.Fields(text))
	byWords := (words*13 + 9) / 10
	if byWords > byChars {
		return byWords
	}
	return byChars
}
