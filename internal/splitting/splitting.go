// Package splitting produces (fit, calibration) folds from a dataset.
package splitting

import (
	"errors"
	"fmt"

	"github.com/go-sod/cpi/internal/predictor"
	"github.com/valyala/fastrand"
)

var ErrNoFolds = errors.New("splitter produced no folds")

// Fold is a fit set paired with a calibration set.
type Fold struct {
	XFit   [][]float64
	YFit   []float64
	XCalib [][]float64
	YCalib []float64
}

type Splitter interface {
	Split(X [][]float64, y []float64) ([]Fold, error)
}

// SplitterFunc adapts a function to the Splitter interface.
type SplitterFunc func(X [][]float64, y []float64) ([]Fold, error)

func (f SplitterFunc) Split(X [][]float64, y []float64) ([]Fold, error) {
	return f(X, y)
}

// Identity returns a splitter that ignores its input and yields the given
// sets as a single fold. The fit set may be empty for pre-trained models.
func Identity(xFit [][]float64, yFit []float64, xCalib [][]float64, yCalib []float64) Splitter {
	return SplitterFunc(func(_ [][]float64, _ []float64) ([]Fold, error) {
		if len(xCalib) == 0 || len(xCalib) != len(yCalib) {
			return nil, fmt.Errorf("identity split: calibration set of %d rows and %d targets", len(xCalib), len(yCalib))
		}
		return []Fold{{XFit: xFit, YFit: yFit, XCalib: xCalib, YCalib: yCalib}}, nil
	})
}

// Random holds out a random share of the data for calibration.
func Random(ratio float64, seed uint32) Splitter {
	return SplitterFunc(func(X [][]float64, y []float64) ([]Fold, error) {
		if !(ratio > 0 && ratio < 1) {
			return nil, fmt.Errorf("random split: ratio must be in (0, 1), got: %v", ratio)
		}
		if _, err := predictor.CheckTrainingSet(X, y); err != nil {
			return nil, fmt.Errorf("random split: %w", err)
		}
		nCalib := int(float64(len(X)) * ratio)
		if nCalib < 1 || nCalib >= len(X) {
			return nil, fmt.Errorf("random split: %d rows cannot be split with ratio %v", len(X), ratio)
		}
		perm := Permutation(len(X), seed)
		xCalib, yCalib := predictor.Rows(X, y, perm[:nCalib])
		xFit, yFit := predictor.Rows(X, y, perm[nCalib:])
		return []Fold{{XFit: xFit, YFit: yFit, XCalib: xCalib, YCalib: yCalib}}, nil
	})
}

// KFold shuffles the data and cuts it into k partitions. Fold i calibrates
// on partition i and fits on the others.
func KFold(k int, seed uint32) Splitter {
	return SplitterFunc(func(X [][]float64, y []float64) ([]Fold, error) {
		if k < 2 {
			return nil, fmt.Errorf("k-fold split: k must be at least 2, got: %d", k)
		}
		if _, err := predictor.CheckTrainingSet(X, y); err != nil {
			return nil, fmt.Errorf("k-fold split: %w", err)
		}
		if len(X) < k {
			return nil, fmt.Errorf("k-fold split: %d rows for %d folds", len(X), k)
		}
		perm := Permutation(len(X), seed)
		folds := make([]Fold, k)
		for i := 0; i < k; i++ {
			from, to := i*len(X)/k, (i+1)*len(X)/k
			fit := make([]int, 0, len(X)-(to-from))
			fit = append(fit, perm[:from]...)
			fit = append(fit, perm[to:]...)
			folds[i].XCalib, folds[i].YCalib = predictor.Rows(X, y, perm[from:to])
			folds[i].XFit, folds[i].YFit = predictor.Rows(X, y, fit)
		}
		return folds, nil
	})
}

// Permutation returns a Fisher-Yates shuffle of [0, n) driven by a seeded
// generator.
func Permutation(n int, seed uint32) []int {
	var rng fastrand.RNG
	rng.Seed(StreamSeed(seed, 0))
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(rng.Uint32n(uint32(i + 1)))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// StreamSeed derives the generator state of one stream from a user seed.
// The pair goes through the splitmix64 finalizer, so neighbouring seeds or
// streams give unrelated states. The result is never zero, zero would make
// the generator fall back to a random seed.
func StreamSeed(seed uint32, stream uint64) uint32 {
	z := uint64(seed)<<32 ^ stream
	z += 0x9e3779b97f4a7c15
	z = (z ^ z>>30) * 0xbf58476d1ce4e5b9
	z = (z ^ z>>27) * 0x94d049bb133111eb
	z ^= z >> 31
	if s := uint32(z) ^ uint32(z>>32); s != 0 {
		return s
	}
	return 1
}
