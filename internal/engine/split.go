package engine

// Split partitions items into exactly n sub-slices. Relative order is
// preserved and sizes differ by at most one: the first len(items) mod n
// partitions receive the extra item. Partitions beyond the item count are
// empty. Every returned sub-slice views the input; callers must not append
// to them.
func Split[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}

	parts := make([][]T, n)
	base := len(items) / n
	extra := len(items) % n

	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		parts[i] = items[idx : idx+size : idx+size]
		idx += size
	}

	return parts
}
