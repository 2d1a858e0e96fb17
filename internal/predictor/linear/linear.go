// Package linear is an ordinary least squares regressor.
package linear

import (
	"context"
	"fmt"

	"github.com/go-sod/cpi/internal/predictor"
	"github.com/sajari/regression"
)

var _ predictor.Predictor = (*Linear)(nil)

func New() *Linear {
	return &Linear{}
}

type Linear struct {
	bias    float64
	weights []float64
	trained bool
}

func (l *Linear) Fit(_ context.Context, X [][]float64, y []float64) error {
	dim, err := predictor.CheckTrainingSet(X, y)
	if err != nil {
		return fmt.Errorf("linear fit: %w", err)
	}

	var r regression.Regression
	r.SetObserved("y")
	for j := 0; j < dim; j++ {
		r.SetVar(j, fmt.Sprintf("x%d", j))
	}
	for i := range X {
		r.Train(regression.DataPoint(y[i], X[i]))
	}
	if err := r.Run(); err != nil {
		return fmt.Errorf("linear fit: %w", err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != dim+1 {
		return fmt.Errorf("linear fit: got %d coefficients for %d features", len(coeffs), dim)
	}
	l.bias = coeffs[0]
	l.weights = append(l.weights[:0], coeffs[1:]...)
	l.trained = true
	return nil
}

func (l *Linear) Predict(X [][]float64) (*predictor.Prediction, error) {
	if !l.trained {
		return nil, predictor.ErrNotTrained
	}
	if _, err := predictor.CheckFeatures(X, len(l.weights)); err != nil {
		return nil, fmt.Errorf("linear predict: %w", err)
	}
	pred := make([]float64, len(X))
	for i, row := range X {
		v := l.bias
		for j := range row {
			v += l.weights[j] * row[j]
		}
		pred[i] = v
	}
	return &predictor.Prediction{Pred: pred}, nil
}

func (l *Linear) IsTrained() bool {
	return l.trained
}

func (l *Linear) Clone() predictor.Predictor {
	c := &Linear{bias: l.bias, trained: l.trained}
	if l.weights != nil {
		c.weights = append([]float64{}, l.weights...)
	}
	return c
}

// Coefficients returns the intercept followed by the feature weights.
func (l *Linear) Coefficients() []float64 {
	return append([]float64{l.bias}, l.weights...)
}
