package array

func Map[T1, T2 any](array []T1, mapper func(T1) T2) []T2 {
	result := make([]T2, len(array))
	for i, elem := range array {
		result[i] = mapper(elem)
	}
	return result
}

// Filter returns the elements that satisfy the predicate, preserving order.
func Filter[T any](array []T, predicate func(T) bool) []T {
	result := make([]T, 0, len(array))
	for _, elem := range array {
		if predicate(elem) {
			result = append(result, elem)
		}
	}
	return result
}

func Contains[T comparable](array []T, target T) bool {
	for _, elem := range array {
		if elem == target {
			return true
		}
	}
	return false
}
