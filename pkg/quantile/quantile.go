package quantile

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// NormTolerance is the allowed deviation of a weight vector sum from 1.
const NormTolerance = 1e-6

var (
	ErrAlphaRange    = errors.New("alpha must be in the open interval (0, 1)")
	ErrEmpty         = errors.New("sample is empty")
	ErrShapeMismatch = errors.New("sample and weights must have the same shape")
	ErrNotNormalized = errors.New("weights are not normalized")
	ErrNegative      = errors.New("weights must be non-negative")
)

// Weighted returns the alpha-th empirical quantile of a.
//
// Without weights it is the "higher" quantile: the sorted sample at index
// ceil((n-1)*alpha). With weights the sample is sorted ascending and the first
// value whose cumulative weight reaches alpha is returned. Ties keep their
// original order, so the result is deterministic.
func Weighted(a []float64, alpha float64, w []float64) (float64, error) {
	if !(alpha > 0 && alpha < 1) {
		return 0, fmt.Errorf("%w, got: %v", ErrAlphaRange, alpha)
	}
	if len(a) == 0 {
		return 0, ErrEmpty
	}
	if w == nil {
		return higher(a, alpha), nil
	}
	if len(w) != len(a) {
		return 0, fmt.Errorf("%w: %d != %d", ErrShapeMismatch, len(a), len(w))
	}
	var sum float64
	for i := range w {
		if w[i] < 0 {
			return 0, fmt.Errorf("%w, weight %d is %v", ErrNegative, i, w[i])
		}
		sum += w[i]
	}
	if math.Abs(sum-1) > NormTolerance {
		return 0, fmt.Errorf("%w, sum of weights is %v", ErrNotNormalized, sum)
	}

	idx := argsort(a)
	var cum float64
	for _, i := range idx {
		cum += w[i]
		if cum >= alpha {
			return a[i], nil
		}
	}
	// rounding left the total just below alpha
	return a[idx[len(idx)-1]], nil
}

// Higher is Weighted without weights.
func Higher(a []float64, alpha float64) (float64, error) {
	return Weighted(a, alpha, nil)
}

// Linear returns the q-th quantile of a interpolating linearly between the
// order statistics around the virtual index (n-1)*q. q must be in [0, 1].
func Linear(a []float64, q float64) (float64, error) {
	if q < 0 || q > 1 || math.IsNaN(q) {
		return 0, fmt.Errorf("quantile level must be in [0, 1], got: %v", q)
	}
	if len(a) == 0 {
		return 0, ErrEmpty
	}
	sorted := make([]float64, len(a))
	copy(sorted, a)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

func higher(a []float64, alpha float64) float64 {
	sorted := make([]float64, len(a))
	copy(sorted, a)
	sort.Float64s(sorted)
	pos := int(math.Ceil(alpha * float64(len(sorted)-1)))
	if pos >= len(sorted) {
		pos = len(sorted) - 1
	}
	return sorted[pos]
}

func argsort(a []float64) []int {
	idx := make([]int, len(a))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return a[idx[i]] < a[idx[j]]
	})
	return idx
}
