package predictor

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotTrained = errors.New("predictor is not trained")
	ErrEmptySet   = errors.New("training set is empty")
)

type ProvideFn func() (Predictor, error)

// Prediction is the output of a Predictor for a batch of points. Any of the
// slices may be nil when the model does not produce that quantity.
type Prediction struct {
	Pred  []float64
	Lower []float64
	Upper []float64
	// Var holds a dispersion estimate, used as a scale by locally adaptive
	// methods.
	Var []float64
}

// Len returns the number of points in the prediction.
func (p *Prediction) Len() int {
	switch {
	case p == nil:
		return 0
	case p.Pred != nil:
		return len(p.Pred)
	case p.Lower != nil:
		return len(p.Lower)
	case p.Upper != nil:
		return len(p.Upper)
	default:
		return len(p.Var)
	}
}

// Predictor is a trainable regression model.
//
// Clone must return an independent copy: training or predicting with the clone
// never touches the state of the original.
type Predictor interface {
	Fit(ctx context.Context, X [][]float64, y []float64) error
	Predict(X [][]float64) (*Prediction, error)
	IsTrained() bool
	Clone() Predictor
}

// CheckTrainingSet validates the shape of a training set and returns the
// number of features.
func CheckTrainingSet(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptySet
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("features and targets length mismatch: %d != %d", len(X), len(y))
	}
	return CheckFeatures(X, len(X[0]))
}

// CheckFeatures verifies that each row has dim features.
func CheckFeatures(X [][]float64, dim int) (int, error) {
	for i := range X {
		if len(X[i]) != dim {
			return 0, fmt.Errorf("row %d has %d features, expected: %d", i, len(X[i]), dim)
		}
	}
	return dim, nil
}

// Rows picks the rows of X and y at the given indexes.
func Rows(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	var ys []float64
	if y != nil {
		ys = make([]float64, len(idx))
	}
	for i, j := range idx {
		xs[i] = X[j]
		if y != nil {
			ys[i] = y[j]
		}
	}
	return xs, ys
}
