package conformal

import (
	"fmt"
	"sort"

	"github.com/go-sod/cpi/internal/calibration"
	"github.com/go-sod/cpi/internal/predictor"
)

// MethodCvPlus is the only supported way to merge cross-validation folds.
const MethodCvPlus = "cv+"

// CrossValCpAggregator keeps the trained model and the fitted calibrator of
// every fold and turns them into a single interval.
type CrossValCpAggregator struct {
	method      string
	predictors  map[int]predictor.Predictor
	calibrators map[int]calibration.Calibrator
}

func NewCrossValCpAggregator(method string) (*CrossValCpAggregator, error) {
	if method != MethodCvPlus {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return &CrossValCpAggregator{
		method:      method,
		predictors:  map[int]predictor.Predictor{},
		calibrators: map[int]calibration.Calibrator{},
	}, nil
}

// Append registers the artifacts of fold k.
func (a *CrossValCpAggregator) Append(k int, p predictor.Predictor, c calibration.Calibrator) {
	a.predictors[k] = p
	a.calibrators[k] = c
}

func (a *CrossValCpAggregator) Len() int {
	return len(a.predictors)
}

func (a *CrossValCpAggregator) Method() string {
	return a.method
}

// Predict with a single fold returns the point prediction, the dispersion and
// the calibrated bounds. With several folds only the bounds are filled.
func (a *CrossValCpAggregator) Predict(X [][]float64, alpha float64) (*predictor.Prediction, error) {
	if err := a.checkFolds(); err != nil {
		return nil, err
	}
	if len(a.predictors) == 0 {
		return nil, ErrNotFitted
	}
	if len(a.predictors) == 1 {
		for k, model := range a.predictors {
			p, err := model.Predict(X)
			if err != nil {
				return nil, fmt.Errorf("fold %d predict: %w", k, err)
			}
			lo, hi, err := a.calibrators[k].Calibrate(X, alpha, p)
			if err != nil {
				return nil, fmt.Errorf("fold %d calibrate: %w", k, err)
			}
			return &predictor.Prediction{Pred: p.Pred, Lower: lo, Upper: hi, Var: p.Var}, nil
		}
	}

	cv, err := calibration.NewCvPlus(a.calibrators)
	if err != nil {
		return nil, err
	}
	lo, hi, err := cv.Calibrate(X, a.predictors, alpha)
	if err != nil {
		return nil, err
	}
	return &predictor.Prediction{Lower: lo, Upper: hi}, nil
}

func (a *CrossValCpAggregator) checkFolds() error {
	if len(a.predictors) != len(a.calibrators) {
		return fmt.Errorf("%w: %d predictors, %d calibrators", ErrFoldMismatch, len(a.predictors), len(a.calibrators))
	}
	for k := range a.predictors {
		if _, ok := a.calibrators[k]; !ok {
			return fmt.Errorf("%w: fold %d has no calibrator", ErrFoldMismatch, k)
		}
	}
	return nil
}

// Folds returns the fold keys in ascending order.
func (a *CrossValCpAggregator) Folds() []int {
	keys := make([]int, 0, len(a.predictors))
	for k := range a.predictors {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
