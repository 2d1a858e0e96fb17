// Package vector holds the column reductions used to aggregate ensemble
// predictions and to score intervals.
package vector

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/go-sod/cpi/pkg/quantile"
)

// V is a read-only view over a float slice. Reductions never reorder it.
type V []float64

// Reducer collapses a vector into one value.
type Reducer func(V) float64

func (v V) Copy() V {
	v1 := make(V, len(v))
	copy(v1, v)
	return v1
}

func (v V) Sum() float64 {
	return floats.Sum(v)
}

// Mean is NaN on an empty vector.
func (v V) Mean() float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Sum(v) / float64(len(v))
}

// Median averages the two middle values on even lengths, NaN when empty.
func (v V) Median() float64 {
	return v.Quantile(0.5)
}

// Quantile is the linearly interpolated q-th quantile, NaN when undefined.
func (v V) Quantile(q float64) float64 {
	x, err := quantile.Linear(v, q)
	if err != nil {
		return math.NaN()
	}
	return x
}

// QuantileAt binds the level, so it can be passed where a Reducer is expected.
func QuantileAt(q float64) Reducer {
	return func(v V) float64 {
		return v.Quantile(q)
	}
}

// Share is the fraction of elements satisfying pred, NaN when empty.
func (v V) Share(pred func(i int, x float64) bool) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	var n int
	for i, x := range v {
		if pred(i, x) {
			n++
		}
	}
	return float64(n) / float64(len(v))
}

func (v V) Equal(vec V) bool {
	return floats.Equal(v, vec)
}
