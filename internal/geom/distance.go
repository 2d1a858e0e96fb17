package geom

import (
	"fmt"
	"math"
)

var ErrDimNotEqual = fmt.Errorf("vectors dimension is not equal")

// DistanceFn measures the distance between two feature vectors.
type DistanceFn func(a, b []float64) (float64, error)

type DistanceType string

const (
	DistanceEuclidean DistanceType = "EUCLIDEAN"
	DistanceChebyshev DistanceType = "CHEBYSHEV"
	DistanceManhattan DistanceType = "MANHATTAN"
)

// DistanceFor resolves a configured distance name.
func DistanceFor(t DistanceType) (DistanceFn, error) {
	switch t {
	case DistanceEuclidean, "":
		return EuclideanDistance, nil
	case DistanceChebyshev:
		return ChebyshevDistance, nil
	case DistanceManhattan:
		return ManhattanDistance, nil
	default:
		return nil, fmt.Errorf("unknown distance function: %s", t)
	}
}

func EuclideanDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimNotEqual
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

func ChebyshevDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimNotEqual
	}
	var max float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > max {
			max = d
		}
	}
	return max, nil
}

func ManhattanDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimNotEqual
	}
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum, nil
}
