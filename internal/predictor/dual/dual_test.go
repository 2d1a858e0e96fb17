package dual

import (
	"context"
	"errors"
	"testing"

	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/internal/predictor/linear"
	"github.com/stretchr/testify/require"
)

func TestDual_Predict(t *testing.T) {
	X := make([][]float64, 101)
	y := make([]float64, 101)
	for i := range X {
		x := float64(i)
		X[i] = []float64{x}
		// deterministic symmetric noise in [-5, 5]
		y[i] = 2*x + float64((i*37)%11-5)
	}
	d, err := New(linear.New(), linear.New(), WithLevels(0.1, 0.9))
	require.NoError(t, err)
	require.NoError(t, d.Fit(context.Background(), X, y))

	p, err := d.Predict([][]float64{{10}, {50}})
	require.NoError(t, err)
	for i := range p.Pred {
		if !(p.Lower[i] < p.Pred[i] && p.Pred[i] < p.Upper[i]) {
			t.Errorf("calling Predict, expected lower < pred < upper, got: %v %v %v", p.Lower[i], p.Pred[i], p.Upper[i])
		}
	}
	if p.Var != nil {
		t.Errorf("calling Predict, no dispersion is expected, got: %v", p.Var)
	}

	covered := 0
	all, err := d.Predict(X)
	require.NoError(t, err)
	for i := range y {
		if y[i] >= all.Lower[i] && y[i] <= all.Upper[i] {
			covered++
		}
	}
	if covered < 70 || covered > 95 {
		t.Errorf("calling Predict, training coverage got: %d of %d", covered, len(y))
	}
}

func TestDual_Errors(t *testing.T) {
	if _, err := New(linear.New(), linear.New(), WithLevels(0.9, 0.1)); err == nil {
		t.Errorf("calling New with inverted levels, an error is expected")
	}
	d, err := New(linear.New(), linear.New())
	require.NoError(t, err)
	if _, err := d.Predict([][]float64{{1}}); !errors.Is(err, predictor.ErrNotTrained) {
		t.Errorf("calling Predict, err got: %v, expected: %v", err, predictor.ErrNotTrained)
	}
}
