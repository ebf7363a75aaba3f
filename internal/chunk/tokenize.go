package chunk

import (
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

// Tokenize extracts lower-cased word tokens from text. A token is a
// maximal run of ASCII letters, digits, and underscores; identifiers
// like snake_case survive as single tokens. This is the indexing
// tokenizer, so changing it invalidates existing postings.
func Tokenize(text string) []string {
	matches := wordRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	tokens := make([]string, len(matches))
	for i, m := range matches {
		tokens[i] = strings.ToLower(m)
	}
	return tokens
}

// TermFreqs returns per-token occurrence counts for text.
func TermFreqs(text string) map[string]int {
	freqs := make(map[string]int)
	for _, tok := range Tokenize(text) {
		freqs[tok]++
	}
	return freqs
}
