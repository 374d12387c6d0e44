package detector

import (
	"slices"
	"sort"
)

// NMS performs greedy Non-Maximum Suppression. Candidates are ordered by
// descending score (ties keep input order); each kept region drops every
// later candidate whose IoU with it exceeds iouThreshold. The input slice is
// not modified.
func NMS(candidates []Region, iouThreshold float64) DetectionSet {
	if len(candidates) == 0 {
		return DetectionSet{}
	}

	sorted := slices.Clone(candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	keep := make([]bool, len(sorted))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(sorted); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if !keep[j] {
				continue
			}
			if IoU(sorted[i], sorted[j]) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make(DetectionSet, 0, len(sorted))
	for i, r := range sorted {
		if keep[i] {
			result = append(result, r)
		}
	}

	return result
}

// IoU calculates Intersection over Union of two regions. It is 0 when the
// regions do not overlap.
func IoU(a, b Region) float64 {
	inter := a.Rect().Intersect(b.Rect())
	if inter.Empty() {
		return 0
	}

	intersection := inter.Dx() * inter.Dy()
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
