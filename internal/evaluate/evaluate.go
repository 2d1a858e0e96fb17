// Package evaluate scores prediction intervals against ground truth.
package evaluate

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-sod/cpi/pkg/math/vector"
)

var (
	ErrEmpty  = errors.New("no points to evaluate")
	ErrLength = errors.New("length mismatch")
)

func check(y, lo, hi []float64) error {
	if len(lo) == 0 {
		return ErrEmpty
	}
	if len(lo) != len(hi) || (y != nil && len(y) != len(lo)) {
		return fmt.Errorf("%w: %d targets, %d lower, %d upper", ErrLength, len(y), len(lo), len(hi))
	}
	return nil
}

// Covered reports whether lo <= y <= hi.
func Covered(y, lo, hi float64) bool {
	return lo <= y && y <= hi
}

// AverageCoverage is the share of targets inside their interval.
func AverageCoverage(y, lo, hi []float64) (float64, error) {
	if y == nil {
		return 0, ErrEmpty
	}
	if err := check(y, lo, hi); err != nil {
		return 0, err
	}
	return vector.V(y).Share(func(i int, target float64) bool {
		return Covered(target, lo[i], hi[i])
	}), nil
}

// ACE is the average coverage error: coverage minus the nominal 1-alpha.
// Negative values mean undercoverage.
func ACE(y, lo, hi []float64, alpha float64) (float64, error) {
	cov, err := AverageCoverage(y, lo, hi)
	if err != nil {
		return 0, err
	}
	return cov - (1 - alpha), nil
}

// Sharpness is the mean interval width.
func Sharpness(lo, hi []float64) (float64, error) {
	if err := check(nil, lo, hi); err != nil {
		return 0, err
	}
	width := make(vector.V, len(lo))
	for i := range lo {
		width[i] = math.Abs(hi[i] - lo[i])
	}
	return width.Mean(), nil
}

// Report bundles the three scores.
type Report struct {
	Coverage  float64
	ACE       float64
	Sharpness float64
	Points    int
}

func Evaluate(y, lo, hi []float64, alpha float64) (Report, error) {
	cov, err := AverageCoverage(y, lo, hi)
	if err != nil {
		return Report{}, err
	}
	sharp, err := Sharpness(lo, hi)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Coverage:  cov,
		ACE:       cov - (1 - alpha),
		Sharpness: sharp,
		Points:    len(y),
	}, nil
}
