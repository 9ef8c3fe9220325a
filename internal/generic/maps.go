package generic

// MapValues flattens the values of one or more maps into a single slice.
// Order is unspecified.
func MapValues[K comparable, V any](maps ...map[K]V) []V {
	var cap int
	for _, m := range maps {
		cap += len(m)
	}

	values := make([]V, 0, cap)

	for _, m := range maps {
		for _, v := range m {
			values = append(values, v)
		}
	}

	return values
}
