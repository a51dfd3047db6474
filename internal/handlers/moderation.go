package handlers

import (
	"strings"

	"github.com/trikaweb/trikaweb/internal/search"
)

// bannedWordMatches returns the wordlist entries found in the comment.
// Matching is case- and diacritic-insensitive.
func bannedWordMatches(comment string, words []string) []string {
	if comment == "" || len(words) == 0 {
		return nil
	}
	normalized := search.Normalize(comment)

	var matches []string
	for _, word := range words {
		if strings.Contains(normalized, search.Normalize(word)) {
			matches = append(matches, word)
		}
	}
	return matches
}
