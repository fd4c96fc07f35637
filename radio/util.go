package radio

func mapKeys[T comparable, Q any](m map[T]Q) []T {
	keys := make([]T, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
