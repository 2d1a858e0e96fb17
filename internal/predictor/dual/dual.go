// Package dual builds a lower and an upper regressor. Each model is fitted
// on the targets and then shifted by an empirical quantile of its own
// training residuals, which makes the pair usable by quantile based methods.
package dual

import (
	"context"
	"fmt"

	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/pkg/quantile"
)

var _ predictor.Predictor = (*Dual)(nil)

type Option func(*Dual)

// WithLevels sets the residual quantile levels of the lower and upper model.
func WithLevels(lo, hi float64) Option {
	return func(d *Dual) {
		d.levelLo = lo
		d.levelHi = hi
	}
}

func New(lo, hi predictor.Predictor, opts ...Option) (*Dual, error) {
	if lo == nil || hi == nil {
		return nil, fmt.Errorf("dual: both lower and upper models are required")
	}
	d := &Dual{lo: lo, hi: hi, levelLo: 0.05, levelHi: 0.95}
	for _, opt := range opts {
		opt(d)
	}
	if !(d.levelLo >= 0 && d.levelLo < d.levelHi && d.levelHi <= 1) {
		return nil, fmt.Errorf("dual: invalid levels %v, %v", d.levelLo, d.levelHi)
	}
	return d, nil
}

type Dual struct {
	lo, hi           predictor.Predictor
	levelLo, levelHi float64
	offLo, offHi     float64
	trained          bool
}

func (d *Dual) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if _, err := predictor.CheckTrainingSet(X, y); err != nil {
		return fmt.Errorf("dual fit: %w", err)
	}
	offLo, err := fitShifted(ctx, d.lo, X, y, d.levelLo)
	if err != nil {
		return fmt.Errorf("dual fit lower model: %w", err)
	}
	offHi, err := fitShifted(ctx, d.hi, X, y, d.levelHi)
	if err != nil {
		return fmt.Errorf("dual fit upper model: %w", err)
	}
	d.offLo, d.offHi = offLo, offHi
	d.trained = true
	return nil
}

func fitShifted(ctx context.Context, p predictor.Predictor, X [][]float64, y []float64, level float64) (float64, error) {
	if err := p.Fit(ctx, X, y); err != nil {
		return 0, err
	}
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(pred.Pred) != len(y) {
		return 0, fmt.Errorf("model returned %d predictions for %d points", len(pred.Pred), len(y))
	}
	residuals := make([]float64, len(y))
	for i := range y {
		residuals[i] = y[i] - pred.Pred[i]
	}
	return quantile.Linear(residuals, level)
}

// Predict reports the shifted bounds in Lower and Upper and their midpoint in
// Pred.
func (d *Dual) Predict(X [][]float64) (*predictor.Prediction, error) {
	if !d.trained {
		return nil, predictor.ErrNotTrained
	}
	lo, err := d.lo.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("dual predict lower: %w", err)
	}
	hi, err := d.hi.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("dual predict upper: %w", err)
	}
	out := &predictor.Prediction{
		Pred:  make([]float64, len(X)),
		Lower: make([]float64, len(X)),
		Upper: make([]float64, len(X)),
	}
	for i := range X {
		out.Lower[i] = lo.Pred[i] + d.offLo
		out.Upper[i] = hi.Pred[i] + d.offHi
		out.Pred[i] = (out.Lower[i] + out.Upper[i]) / 2
	}
	return out, nil
}

func (d *Dual) IsTrained() bool {
	return d.trained
}

func (d *Dual) Clone() predictor.Predictor {
	c := *d
	c.lo = d.lo.Clone()
	c.hi = d.hi.Clone()
	return &c
}
