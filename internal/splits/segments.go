// Package splits derives segment times and split comparisons from cumulative times.
package splits

// Segments converts cumulative times into per-segment durations. An unset predecessor counts
// as zero and unset entries stay unset.
func Segments(cumulative []*int64) []*int64 {
	out := make([]*int64, len(cumulative))
	for i, cur := range cumulative {
		if cur == nil {
			continue
		}
		var prev int64
		if i > 0 && cumulative[i-1] != nil {
			prev = *cumulative[i-1]
		}
		out[i] = ptr(*cur - prev)
	}
	return out
}

// TheoreticalBest returns the running sum of best segments. Missing bests add nothing.
func TheoreticalBest(bestSegments []*int64) []int64 {
	out := make([]int64, len(bestSegments))
	var acc int64
	for i, seg := range bestSegments {
		if seg != nil {
			acc += *seg
		}
		out[i] = acc
	}
	return out
}

// SumOfBest returns the theoretical best total and whether every index has a best segment.
func SumOfBest(bestSegments []*int64) (int64, bool) {
	if len(bestSegments) == 0 {
		return 0, false
	}
	var total int64
	complete := true
	for _, seg := range bestSegments {
		if seg == nil {
			complete = false
			continue
		}
		total += *seg
	}
	return total, complete
}

// NextUnset returns the first unset index, or len(cumulative) when all are set.
func NextUnset(cumulative []*int64) int {
	for i, v := range cumulative {
		if v == nil {
			return i
		}
	}
	return len(cumulative)
}

// Complete reports whether every entry is set.
func Complete(cumulative []*int64) bool {
	return len(cumulative) > 0 && NextUnset(cumulative) == len(cumulative)
}

// Values flattens cumulative times, using zero for unset entries.
func Values(cumulative []*int64) []int64 {
	out := make([]int64, len(cumulative))
	for i, v := range cumulative {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

// Clone deep-copies a nullable sequence.
func Clone(values []*int64) []*int64 {
	if values == nil {
		return nil
	}
	out := make([]*int64, len(values))
	for i, v := range values {
		if v != nil {
			out[i] = ptr(*v)
		}
	}
	return out
}

func ptr(v int64) *int64 {
	return &v
}
