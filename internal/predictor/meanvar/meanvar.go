// Package meanvar pairs a mean regressor with a dispersion regressor trained
// on the absolute residuals of the first one.
package meanvar

import (
	"context"
	"fmt"
	"math"

	"github.com/go-sod/cpi/internal/predictor"
)

var _ predictor.Predictor = (*MeanVar)(nil)

func New(mean, dispersion predictor.Predictor) (*MeanVar, error) {
	if mean == nil || dispersion == nil {
		return nil, fmt.Errorf("meanvar: both mean and dispersion models are required")
	}
	return &MeanVar{mean: mean, dispersion: dispersion}, nil
}

type MeanVar struct {
	mean       predictor.Predictor
	dispersion predictor.Predictor
}

func (m *MeanVar) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if _, err := predictor.CheckTrainingSet(X, y); err != nil {
		return fmt.Errorf("meanvar fit: %w", err)
	}
	if err := m.mean.Fit(ctx, X, y); err != nil {
		return fmt.Errorf("meanvar fit mean model: %w", err)
	}
	p, err := m.mean.Predict(X)
	if err != nil {
		return fmt.Errorf("meanvar predict mean model: %w", err)
	}
	if len(p.Pred) != len(y) {
		return fmt.Errorf("meanvar: mean model returned %d predictions for %d points", len(p.Pred), len(y))
	}
	abs := make([]float64, len(y))
	for i := range y {
		abs[i] = math.Abs(y[i] - p.Pred[i])
	}
	if err := m.dispersion.Fit(ctx, X, abs); err != nil {
		return fmt.Errorf("meanvar fit dispersion model: %w", err)
	}
	return nil
}

// Predict returns the mean in Pred and the dispersion in Var. Negative
// dispersion estimates are clipped to zero.
func (m *MeanVar) Predict(X [][]float64) (*predictor.Prediction, error) {
	if !m.IsTrained() {
		return nil, predictor.ErrNotTrained
	}
	mean, err := m.mean.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("meanvar predict mean: %w", err)
	}
	disp, err := m.dispersion.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("meanvar predict dispersion: %w", err)
	}
	sigma := make([]float64, len(disp.Pred))
	for i, v := range disp.Pred {
		sigma[i] = math.Max(v, 0)
	}
	return &predictor.Prediction{Pred: mean.Pred, Var: sigma}, nil
}

func (m *MeanVar) IsTrained() bool {
	return m.mean.IsTrained() && m.dispersion.IsTrained()
}

func (m *MeanVar) Clone() predictor.Predictor {
	return &MeanVar{mean: m.mean.Clone(), dispersion: m.dispersion.Clone()}
}
