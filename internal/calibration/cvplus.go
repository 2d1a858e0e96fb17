package calibration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/pkg/quantile"
)

var ErrFoldMismatch = errors.New("fold predictors and calibrators do not match")

// CvPlus aggregates cross-validation folds: every residual of every fold is
// combined with the prediction of that fold's model, the bounds are the
// (1-alpha) quantiles over all combinations.
type CvPlus struct {
	calibrators map[int]Calibrator
	keys        []int
}

func NewCvPlus(calibrators map[int]Calibrator) (*CvPlus, error) {
	if len(calibrators) == 0 {
		return nil, fmt.Errorf("cv+: no calibrators")
	}
	keys := make([]int, 0, len(calibrators))
	for k := range calibrators {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return &CvPlus{calibrators: calibrators, keys: keys}, nil
}

// Calibrate computes the cv+ interval of X. The work grows with the number of
// folds times the residuals per fold times len(X).
func (c *CvPlus) Calibrate(X [][]float64, predictors map[int]predictor.Predictor, alpha float64) ([]float64, []float64, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, nil, fmt.Errorf("cv+: %w, got: %v", quantile.ErrAlphaRange, alpha)
	}
	if len(predictors) != len(c.calibrators) {
		return nil, nil, fmt.Errorf("%w: %d predictors, %d calibrators", ErrFoldMismatch, len(predictors), len(c.calibrators))
	}

	n := len(X)
	negLows := make([][]float64, n)
	highs := make([][]float64, n)
	for _, k := range c.keys {
		model, ok := predictors[k]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no predictor for fold %d", ErrFoldMismatch, k)
		}
		calib := c.calibrators[k]
		residuals, err := calib.Residuals()
		if err != nil {
			return nil, nil, fmt.Errorf("cv+ fold %d: %w", k, err)
		}
		p, err := model.Predict(X)
		if err != nil {
			return nil, nil, fmt.Errorf("cv+ fold %d predict: %w", k, err)
		}
		q := make([]float64, n)
		for _, r := range residuals {
			for i := range q {
				q[i] = r
			}
			lo, hi, err := calib.Strategy().Interval(p, q)
			if err != nil {
				return nil, nil, fmt.Errorf("cv+ fold %d interval: %w", k, err)
			}
			for i := 0; i < n; i++ {
				negLows[i] = append(negLows[i], -lo[i])
				highs[i] = append(highs[i], hi[i])
			}
		}
	}

	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := 0; i < n; i++ {
		l, err := quantile.Higher(negLows[i], 1-alpha)
		if err != nil {
			return nil, nil, fmt.Errorf("cv+ lower bound: %w", err)
		}
		h, err := quantile.Higher(highs[i], 1-alpha)
		if err != nil {
			return nil, nil, fmt.Errorf("cv+ upper bound: %w", err)
		}
		lower[i], upper[i] = -l, h
	}
	return lower, upper, nil
}
