// Package nonconformity holds pairs of score and interval functions. The
// score measures how unusual a target is for a prediction, the interval
// function turns a score quantile back into bounds.
package nonconformity

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-sod/cpi/internal/predictor"
)

// Epsilon keeps scaled scores finite when the dispersion is zero.
const Epsilon = 0x1p-1022

var (
	ErrMissingVar    = errors.New("dispersion estimate is required")
	ErrNegativeVar   = errors.New("dispersion estimate must be non-negative")
	ErrMissingBounds = errors.New("lower and upper estimates are required")
	ErrMissingPred   = errors.New("point estimate is required")
	ErrLength        = errors.New("length mismatch")
)

type (
	ScoreFn    func(yTrue []float64, p *predictor.Prediction) ([]float64, error)
	IntervalFn func(p *predictor.Prediction, q []float64) (lo, hi []float64, err error)
)

// Strategy binds a score function to its interval reconstruction.
type Strategy struct {
	Name     string
	Score    ScoreFn
	Interval IntervalFn
}

// Absolute scores |y - ŷ| and builds ŷ ± q.
var Absolute = Strategy{Name: "absolute", Score: absoluteScore, Interval: absoluteInterval}

// Scaled scores |y - ŷ| / σ and builds ŷ ± qσ.
var Scaled = Strategy{Name: "scaled", Score: scaledScore, Interval: scaledInterval}

// CQR scores max(lo - y, y - hi) and builds (lo - q, hi + q).
var CQR = Strategy{Name: "cqr", Score: cqrScore, Interval: cqrInterval}

func checkPred(p *predictor.Prediction, n int) error {
	if p == nil || p.Pred == nil {
		return ErrMissingPred
	}
	if len(p.Pred) != n {
		return fmt.Errorf("%w: %d predictions for %d values", ErrLength, len(p.Pred), n)
	}
	return nil
}

func checkVar(p *predictor.Prediction) error {
	if p.Var == nil {
		return ErrMissingVar
	}
	if len(p.Var) != len(p.Pred) {
		return fmt.Errorf("%w: %d dispersions for %d predictions", ErrLength, len(p.Var), len(p.Pred))
	}
	for i, s := range p.Var {
		if s < 0 {
			return fmt.Errorf("%w, got %v at %d", ErrNegativeVar, s, i)
		}
	}
	return nil
}

func checkBounds(p *predictor.Prediction, n int) error {
	if p == nil || p.Lower == nil || p.Upper == nil {
		return ErrMissingBounds
	}
	if len(p.Lower) != n || len(p.Upper) != n {
		return fmt.Errorf("%w: bounds of %d and %d for %d values", ErrLength, len(p.Lower), len(p.Upper), n)
	}
	return nil
}

func checkQuantiles(q []float64, n int) error {
	if len(q) != n {
		return fmt.Errorf("%w: %d quantiles for %d points", ErrLength, len(q), n)
	}
	return nil
}

func absoluteScore(yTrue []float64, p *predictor.Prediction) ([]float64, error) {
	if err := checkPred(p, len(yTrue)); err != nil {
		return nil, err
	}
	out := make([]float64, len(yTrue))
	for i := range yTrue {
		out[i] = math.Abs(yTrue[i] - p.Pred[i])
	}
	return out, nil
}

func absoluteInterval(p *predictor.Prediction, q []float64) ([]float64, []float64, error) {
	if err := checkPred(p, len(q)); err != nil {
		return nil, nil, err
	}
	lo := make([]float64, len(q))
	hi := make([]float64, len(q))
	for i := range q {
		lo[i] = p.Pred[i] - q[i]
		hi[i] = p.Pred[i] + q[i]
	}
	return lo, hi, nil
}

func scaledScore(yTrue []float64, p *predictor.Prediction) ([]float64, error) {
	if err := checkPred(p, len(yTrue)); err != nil {
		return nil, err
	}
	if err := checkVar(p); err != nil {
		return nil, err
	}
	out := make([]float64, len(yTrue))
	for i := range yTrue {
		out[i] = math.Abs(yTrue[i]-p.Pred[i]) / (p.Var[i] + Epsilon)
	}
	return out, nil
}

func scaledInterval(p *predictor.Prediction, q []float64) ([]float64, []float64, error) {
	if err := checkPred(p, len(q)); err != nil {
		return nil, nil, err
	}
	if err := checkVar(p); err != nil {
		return nil, nil, err
	}
	lo := make([]float64, len(q))
	hi := make([]float64, len(q))
	for i := range q {
		half := q[i] * p.Var[i]
		lo[i] = p.Pred[i] - half
		hi[i] = p.Pred[i] + half
	}
	return lo, hi, nil
}

func cqrScore(yTrue []float64, p *predictor.Prediction) ([]float64, error) {
	if err := checkBounds(p, len(yTrue)); err != nil {
		return nil, err
	}
	out := make([]float64, len(yTrue))
	for i := range yTrue {
		out[i] = math.Max(p.Lower[i]-yTrue[i], yTrue[i]-p.Upper[i])
	}
	return out, nil
}

func cqrInterval(p *predictor.Prediction, q []float64) ([]float64, []float64, error) {
	if err := checkBounds(p, len(q)); err != nil {
		return nil, nil, err
	}
	lo := make([]float64, len(q))
	hi := make([]float64, len(q))
	for i := range q {
		lo[i] = p.Lower[i] - q[i]
		hi[i] = p.Upper[i] + q[i]
	}
	return lo, hi, nil
}

// For resolves a strategy by name.
func For(name string) (Strategy, error) {
	switch name {
	case Absolute.Name:
		return Absolute, nil
	case Scaled.Name:
		return Scaled, nil
	case CQR.Name:
		return CQR, nil
	default:
		return Strategy{}, fmt.Errorf("unknown nonconformity strategy: %s", name)
	}
}
