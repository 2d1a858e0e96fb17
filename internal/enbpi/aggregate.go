package enbpi

import (
	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/cpi/pkg/math/vector"
)

// AggregateFn reduces every column of a matrix to one value. The rows are the
// leave-one-out estimates of the training samples, the columns are the
// predicted points.
type AggregateFn func(m mat.Matrix) []float64

func columns(m mat.Matrix, fn vector.Reducer) []float64 {
	r, c := m.Dims()
	out := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		out[j] = fn(col)
	}
	return out
}

// Mean is the EnbPI v2 aggregation.
func Mean(m mat.Matrix) []float64 {
	return columns(m, vector.V.Mean)
}

func Median(m mat.Matrix) []float64 {
	return columns(m, vector.V.Median)
}

// Quantile returns the EnbPI v1 aggregation at level q.
func Quantile(q float64) AggregateFn {
	return func(m mat.Matrix) []float64 {
		return columns(m, vector.QuantileAt(q))
	}
}

// AggregateFor resolves a configured aggregation name.
func AggregateFor(name string) (AggregateFn, bool) {
	switch name {
	case "MEAN", "":
		return Mean, true
	case "MEDIAN":
		return Median, true
	default:
		return nil, false
	}
}
