package pkg

func Filter[T any](items []T, predicate func(T) bool) []T {
	filtered := []T{}
	for _, item := range items {
		if predicate(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Converts a value suspected to be either an int or float64 to an int.
// JSON decoding turns all numbers into float64 so this is needed anywhere
// row ids cross a decode boundary.
func NumToInt(num any) int {
	switch num := num.(type) {
	case int:
		return num
	case int64:
		return int(num)
	case float64:
		return int(num)
	}
	return 0
}

func NumToInt64(num any) int64 {
	switch num := num.(type) {
	case int:
		return int64(num)
	case int64:
		return num
	case float64:
		return int64(num)
	}
	return 0
}
