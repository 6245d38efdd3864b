package graph

import "strings"

// Normalize produces the uniqueness key for entity names: lowercase, trimmed,
// internal whitespace collapsed to single spaces. Idempotent by construction.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
