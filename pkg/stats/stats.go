// Package stats provides the small set of order statistics the Monte Carlo
// aggregator needs. All functions operate on float64 samples.
package stats

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0..100) of the sample using linear
// interpolation between order statistics: index = p/100 × (n-1). The input
// does not need to be sorted. Returns NaN for an empty sample.
func Percentile(sample []float64, p float64) float64 {
	if len(sample) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	return PercentileSorted(sorted, p)
}

// PercentileSorted is Percentile over an already ascending-sorted sample.
func PercentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p / 100 * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= n {
		return sorted[n-1]
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Mean returns the arithmetic mean, or 0 for an empty sample.
func Mean(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample))
}

// PearsonCorrelation returns the correlation coefficient of two equal-length
// samples. Returns 0 when either sample has no variance or fewer than two
// points, so a degenerate distribution never propagates NaN.
func PearsonCorrelation(xs, ys []float64) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0
	}
	mx, my := Mean(xs), Mean(ys)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// QuintileMeans sorts the values by the paired keys and returns the mean value
// of the lowest and highest key quintile. With fewer than five samples both
// means degrade to the overall mean.
func QuintileMeans(keys, values []float64) (worst, best float64) {
	n := len(keys)
	if n == 0 || n != len(values) {
		return 0, 0
	}
	if n < 5 {
		m := Mean(values)
		return m, m
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	q := n / 5
	worstSlice := make([]float64, 0, q)
	bestSlice := make([]float64, 0, q)
	for i := 0; i < q; i++ {
		worstSlice = append(worstSlice, values[idx[i]])
		bestSlice = append(bestSlice, values[idx[n-1-i]])
	}
	return Mean(worstSlice), Mean(bestSlice)
}
