package utils

// Filter returns the elements of slice for which keep returns true. The
// input is never mutated; a nil result means nothing matched.
func Filter[T any](slice []T, keep func(T) bool) []T {
	var out []T
	for _, item := range slice {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
