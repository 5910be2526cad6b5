// Package strings provides string slice helpers for request input.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empty and repeated ones,
// keeping first-seen order.
//
//	DedupeAndTrim([]string{" a ", "b", "a", ""}) // []string{"a", "b"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
