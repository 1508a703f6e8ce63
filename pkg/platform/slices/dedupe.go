// Package slices provides slice helpers not covered by the standard slices package.
package slices

// Dedupe removes duplicate values from a slice. Order of first occurrence is preserved.
//
// Example:
//
//	Dedupe([]int64{3, 1, 3, 2, 1})
//	// Returns: []int64{3, 1, 2}
func Dedupe[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}

	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))

	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}

// Difference returns the values of a that are absent from b, in a's order.
func Difference[T comparable](a, b []T) []T {
	exclude := make(map[T]struct{}, len(b))
	for _, v := range b {
		exclude[v] = struct{}{}
	}
	var result []T
	for _, v := range a {
		if _, ok := exclude[v]; !ok {
			result = append(result, v)
		}
	}
	return result
}
