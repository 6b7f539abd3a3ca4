package queue

// Linear returns every integer in [start, end] in ascending order. It returns
// nil when start > end.
func Linear(start, end int64) []int64 {
	if start > end {
		return nil
	}
	out := make([]int64, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, n)
	}
	return out
}

// Outward returns center first, then center-d and center+d for d = 1, 2, ...
// keeping only values within [lo, hi], until both directions leave the
// bounds. Center is always the first element.
func Outward(center, lo, hi int64) []int64 {
	out := []int64{center}
	for d := int64(1); ; d++ {
		up, down := center+d, center-d
		upIn := up >= lo && up <= hi
		downIn := down >= lo && down <= hi
		if downIn {
			out = append(out, down)
		}
		if upIn {
			out = append(out, up)
		}
		if up > hi && down < lo {
			return out
		}
	}
}

// After drops every element up to and including the first occurrence of
// cursor. When cursor is absent the sequence is returned unchanged.
func After(seq []int64, cursor int64) []int64 {
	for i, n := range seq {
		if n == cursor {
			return seq[i+1:]
		}
	}
	return seq
}
