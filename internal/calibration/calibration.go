// Package calibration turns residuals computed on held-out data into
// prediction intervals.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-sod/cpi/internal/nonconformity"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/pkg/quantile"
)

var (
	ErrNotFitted    = errors.New("calibrator is not fitted")
	ErrWeights      = errors.New("invalid calibration weights")
	ErrZeroWeights  = errors.New("calibration weights sum to zero")
	ErrEmptyResidue = errors.New("calibration set is empty")
)

// WeightFn maps a set of points to non-negative weights, one per point.
type WeightFn func(X [][]float64) ([]float64, error)

type Calibrator interface {
	// Fit computes and stores the residuals of a calibration set.
	Fit(yTrue []float64, X [][]float64, p *predictor.Prediction) error
	// Calibrate builds intervals around a prediction of X.
	Calibrate(X [][]float64, alpha float64, p *predictor.Prediction) (lo, hi []float64, err error)
	Residuals() ([]float64, error)
	// Weights returns the normalized calibration weights, nil when the
	// calibrator is unweighted.
	Weights() ([]float64, error)
	Strategy() nonconformity.Strategy
	Clone() Calibrator
}

type Option func(*Base)

func WithWeightFn(fn WeightFn) Option {
	return func(b *Base) {
		b.weightFn = fn
	}
}

var _ Calibrator = (*Base)(nil)

func New(strategy nonconformity.Strategy, opts ...Option) (*Base, error) {
	if strategy.Score == nil || strategy.Interval == nil {
		return nil, fmt.Errorf("calibration: strategy %q is incomplete", strategy.Name)
	}
	b := &Base{strategy: strategy}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Base is a split conformal calibrator. Without a weight function the
// quantile is the "higher" (1-alpha) quantile of the residuals. With one,
// every test point gets its own quantile over the residuals and +Inf.
type Base struct {
	strategy  nonconformity.Strategy
	weightFn  WeightFn
	residuals []float64
	weights   []float64
	fitted    bool
}

func (b *Base) Fit(yTrue []float64, X [][]float64, p *predictor.Prediction) error {
	if len(yTrue) == 0 {
		return ErrEmptyResidue
	}
	residuals, err := b.strategy.Score(yTrue, p)
	if err != nil {
		return fmt.Errorf("calibration fit: %w", err)
	}
	var weights []float64
	if b.weightFn != nil {
		weights, err = b.pointWeights(X, len(yTrue))
		if err != nil {
			return fmt.Errorf("calibration fit: %w", err)
		}
	}
	b.residuals, b.weights, b.fitted = residuals, weights, true
	return nil
}

func (b *Base) pointWeights(X [][]float64, n int) ([]float64, error) {
	w, err := b.weightFn(X)
	if err != nil {
		return nil, err
	}
	if len(w) != n {
		return nil, fmt.Errorf("%w: %d weights for %d points", ErrWeights, len(w), n)
	}
	for i, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: weight %d is %v", ErrWeights, i, v)
		}
	}
	return w, nil
}

func (b *Base) Calibrate(X [][]float64, alpha float64, p *predictor.Prediction) ([]float64, []float64, error) {
	if !b.fitted {
		return nil, nil, ErrNotFitted
	}
	if !(alpha > 0 && alpha < 1) {
		return nil, nil, fmt.Errorf("calibrate: %w, got: %v", quantile.ErrAlphaRange, alpha)
	}
	n := p.Len()
	q := make([]float64, n)
	if b.weightFn == nil {
		v, err := quantile.Higher(b.residuals, 1-alpha)
		if err != nil {
			return nil, nil, fmt.Errorf("calibrate: %w", err)
		}
		for i := range q {
			q[i] = v
		}
	} else {
		testW, err := b.pointWeights(X, n)
		if err != nil {
			return nil, nil, fmt.Errorf("calibrate: %w", err)
		}
		if err := b.weightedQuantiles(q, testW, alpha); err != nil {
			return nil, nil, fmt.Errorf("calibrate: %w", err)
		}
	}
	lo, hi, err := b.strategy.Interval(p, q)
	if err != nil {
		return nil, nil, fmt.Errorf("calibrate: %w", err)
	}
	return lo, hi, nil
}

func (b *Base) weightedQuantiles(q, testW []float64, alpha float64) error {
	var sum float64
	for _, v := range b.weights {
		sum += v
	}
	scores := make([]float64, len(b.residuals)+1)
	copy(scores, b.residuals)
	scores[len(b.residuals)] = math.Inf(1)
	w := make([]float64, len(scores))
	for j, wj := range testW {
		total := sum + wj
		if total == 0 {
			return ErrZeroWeights
		}
		for i, v := range b.weights {
			w[i] = v / total
		}
		w[len(b.weights)] = wj / total
		v, err := quantile.Weighted(scores, 1-alpha, w)
		if err != nil {
			return err
		}
		q[j] = v
	}
	return nil
}

func (b *Base) Residuals() ([]float64, error) {
	if !b.fitted {
		return nil, ErrNotFitted
	}
	return append([]float64{}, b.residuals...), nil
}

func (b *Base) Weights() ([]float64, error) {
	if !b.fitted {
		return nil, ErrNotFitted
	}
	if b.weights == nil {
		return nil, nil
	}
	var sum float64
	for _, v := range b.weights {
		sum += v
	}
	if sum == 0 {
		return nil, ErrZeroWeights
	}
	out := make([]float64, len(b.weights))
	for i, v := range b.weights {
		out[i] = v / sum
	}
	return out, nil
}

func (b *Base) Strategy() nonconformity.Strategy {
	return b.strategy
}

func (b *Base) Clone() Calibrator {
	c := &Base{strategy: b.strategy, weightFn: b.weightFn, fitted: b.fitted}
	if b.residuals != nil {
		c.residuals = append([]float64{}, b.residuals...)
	}
	if b.weights != nil {
		c.weights = append([]float64{}, b.weights...)
	}
	return c
}
