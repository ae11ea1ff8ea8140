// Package sliceutil provides generic slice manipulation utilities.
package sliceutil

// Deduplicate removes duplicate items from a slice while preserving order.
// The keyFunc extracts a unique key from each item for comparison.
// Only the first occurrence of each key is kept.
//
// Example:
//
//	candidates := []course.Candidate{{Course: course.Course{ID: "a"}}, {Course: course.Course{ID: "a"}}}
//	unique := sliceutil.Deduplicate(candidates, func(c course.Candidate) string { return c.Course.ID })
func Deduplicate[T any, K comparable](items []T, keyFunc func(T) K) []T {
	if len(items) == 0 {
		return items
	}

	seen := make(map[K]struct{}, len(items))
	result := make([]T, 0, len(items))

	for _, item := range items {
		key := keyFunc(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, item)
	}

	return result
}

// Unique removes repeated values, keeping first-occurrence order.
func Unique[T comparable](items []T) []T {
	return Deduplicate(items, func(v T) T { return v })
}

// Filter returns the items for which keep returns true, in order.
// The input slice is not modified.
func Filter[T any](items []T, keep func(T) bool) []T {
	result := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			result = append(result, item)
		}
	}
	return result
}
