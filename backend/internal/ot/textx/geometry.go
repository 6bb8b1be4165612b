package textx

import "composer/backend/internal/doc"

// IsIntersecting reports whether the closed intervals [aStart, aEnd] and
// [bStart, bEnd] share at least one offset.
func IsIntersecting(aStart, aEnd, bStart, bEnd int) bool {
	return max(aStart, bStart) <= min(aEnd, bEnd)
}

// ExcludePoints cuts the inclusive interval rng around each of points (sorted
// ascending) and returns the non-empty pieces, without the points themselves.
func ExcludePoints(rng [2]int, points []int) [][2]int {
	var out [][2]int
	start := rng[0]
	for _, p := range points {
		if p < start || p > rng[1] {
			continue
		}
		if p > start {
			out = append(out, [2]int{start, p - 1})
		}
		start = p + 1
	}
	if start <= rng[1] {
		out = append(out, [2]int{start, rng[1]})
	}
	return out
}

// ShouldDeleteCustomRange reports whether deleting deleteLen runes from
// deleteStart removes both sentinels of r. When only one sentinel is inside
// the deleted span the range survives and that sentinel must be retained.
func ShouldDeleteCustomRange(deleteStart, deleteLen int, r doc.CustomRange, stream []rune) bool {
	deleteEnd := deleteStart + deleteLen
	inside := func(i int) bool {
		return i >= deleteStart && i < deleteEnd && i < len(stream)
	}
	return inside(r.Start()) && inside(r.End())
}
