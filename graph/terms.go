package graph

import (
	"fmt"
	"strings"
)

// Term normalizes a lookup value to a single index term under the given
// kind. Fulltext lookups match one token, lowercased.
func Term(value any, kind IndexKind) string {
	s := fmt.Sprintf("%v", value)
	if kind == IndexFulltext {
		s = strings.ToLower(s)
	}
	return s
}

// Terms expands a stored value into its index terms: the whole value for
// exact indexes, lowercased whitespace tokens for fulltext ones. Backends
// share this normalization so a value indexed through one backend matches
// the same lookups on any other.
func Terms(value any, kind IndexKind) []string {
	s := fmt.Sprintf("%v", value)
	if kind == IndexExact {
		return []string{s}
	}
	return strings.Fields(strings.ToLower(s))
}
