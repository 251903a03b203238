package extraction

import "sort"

// MCutThreshold computes the Maximum Cut threshold (spec.md §4.4.1):
// given probabilities sorted descending, let d_i = p_i - p_(i+1), t =
// argmax d_i; threshold = (p_t + p_(t+1)) / 2.
//
// Grounded byte-for-byte on original_source's
// data_extractors/data_handlers/tags.py:mcut_threshold (Largeron, Moulin &
// Gery 2012).
//
// A single-probability input has no adjacent gap to cut; the probability
// itself is returned as the threshold.
func MCutThreshold(probs []float64) float64 {
	sorted := make([]float64, len(probs))
	copy(sorted, probs)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	if len(sorted) < 2 {
		return sorted[0]
	}

	bestIdx := 0
	bestDiff := sorted[0] - sorted[1]
	for i := 1; i < len(sorted)-1; i++ {
		diff := sorted[i] - sorted[i+1]
		if diff > bestDiff {
			bestDiff = diff
			bestIdx = i
		}
	}
	return (sorted[bestIdx] + sorted[bestIdx+1]) / 2
}
