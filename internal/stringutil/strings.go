// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strconv"
	"strings"
)

// ParseLeadingInt parses the integer prefix of s, the way loosely typed
// catalog fields are coerced before comparison.
// Leading whitespace and a single sign are accepted; parsing stops at the
// first non-digit, so "5", " 5", "5.0" and "5abc" all yield 5.
// Returns false when s has no leading digits.
//
// Example:
//
//	ParseLeadingInt("13")    // 13, true
//	ParseLeadingInt("-2x")   // -2, true
//	ParseLeadingInt("paper") // 0, false
func ParseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	if s == "" {
		return 0, false
	}

	sign := ""
	if s[0] == '+' || s[0] == '-' {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(sign + s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ContainsFold reports whether substr is within s, ignoring ASCII and Unicode case.
// An empty substr never matches, unlike strings.Contains.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ContainsEither reports whether either string contains the other.
// Both strings must be non-empty; comparison is case-sensitive, so callers
// lower-case first when needed.
func ContainsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
