package smp

import (
	"math"
	"slices"
	"sort"

	"github.com/arloliu/sempress-lfs/internal/pool"
)

const (
	// MaxK is the largest codebook the format can index.
	MaxK = 1 << 16
	// maxLloydRounds bounds the k-means refinement.
	maxLloydRounds = 16
)

// buildCodebook returns at most k ascending centroids for the finite values.
//
// If the values have at most k distinct members the codebook is exactly that
// set. Otherwise centroids are seeded at evenly spaced quantiles and refined
// with Lloyd iterations, which in one dimension assign contiguous runs of the
// sorted values to each centroid.
func buildCodebook(values []float64, k int) []float64 {
	sorted, cleanup := pool.GetFloat64Slice(len(values))
	defer cleanup()
	sorted = sorted[:0]
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	slices.Sort(sorted)

	distinct := slices.Compact(slices.Clone(sorted))
	if len(distinct) <= k {
		return distinct
	}

	n := len(sorted)
	centroids := make([]float64, 0, k)
	for i := range k {
		centroids = append(centroids, sorted[(2*i+1)*n/(2*k)])
	}
	centroids = slices.Compact(centroids)

	sums := make([]float64, len(centroids))
	counts := make([]int, len(centroids))
	for range maxLloydRounds {
		clear(sums)
		clear(counts)

		j := 0
		for _, v := range sorted {
			for j < len(centroids)-1 && v > (centroids[j]+centroids[j+1])/2 {
				j++
			}
			sums[j] += v
			counts[j]++
		}

		changed := false
		for i := range centroids {
			if counts[i] == 0 {
				continue
			}
			mean := sums[i] / float64(counts[i])
			if mean != centroids[i] {
				centroids[i] = mean
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	slices.Sort(centroids)

	return slices.Compact(centroids)
}

// nearest returns the index of the centroid closest to v, preferring the
// lower centroid on ties.
func nearest(centroids []float64, v float64) int {
	idx := sort.SearchFloat64s(centroids, v)
	switch {
	case idx == 0:
		return 0
	case idx == len(centroids):
		return len(centroids) - 1
	case v-centroids[idx-1] <= centroids[idx]-v:
		return idx - 1
	default:
		return idx
	}
}

// tolerance is the largest approximation error accepted for a column
// spanning [lo, hi] with a codebook of k cells.
func tolerance(threshold, lo, hi float64, k int) float64 {
	if k <= 0 || hi <= lo {
		return 0
	}

	return threshold * (hi - lo) / float64(k)
}

// finiteRange returns the min and max of the finite values.
func finiteRange(values []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
		ok = true
	}

	return lo, hi, ok
}
