package auth

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldUsername returns the case-folded form used for unique, case-insensitive
// username comparison ("Alice", "ALICE" and "alice" all fold to "alice").
func FoldUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// SameUsername reports whether a and b name the same account.
func SameUsername(a, b string) bool {
	return FoldUsername(a) == FoldUsername(b)
}
