package domain

import "strings"

// NormalizeWhitespace collapses every whitespace run, newlines included, into a
// single space and trims both ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
