package storage

import "strings"

// sanitizeSearchTerm escapes SQLite LIKE special characters so user text
// in ListCourses queries is matched literally. Use with ESCAPE '\':
//
//	% (matches any sequence of characters)
//	_ (matches any single character)
//	\ (the escape character itself)
func sanitizeSearchTerm(term string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\", // Escape backslash first
		"%", "\\%",
		"_", "\\_",
	)
	return replacer.Replace(term)
}
