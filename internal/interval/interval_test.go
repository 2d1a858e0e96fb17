package interval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-sod/cpi/internal/geom"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/internal/predictor/knn"
	"github.com/go-sod/cpi/internal/predictor/linear"
)

func testConfig(method Method) Config {
	return Config{
		Config:      predictor.Config{Type: predictor.AlgTypeLinear, KNum: 3, Distance: geom.DistanceEuclidean},
		Method:      method,
		Alpha:       0.1,
		Folds:       4,
		Bootstraps:  40,
		Seed:        21,
		CalibRatio:  0.25,
		Aggregate:   "MEAN",
		UpdateBatch: 4,
		Workers:     2,
	}
}

func line(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x := float64(i) / 4
		X[i] = []float64{x}
		y[i] = 3*x - 2 + float64((i*13)%7-3)/4
	}
	return X, y
}

func TestNew_Methods(t *testing.T) {
	tests := []struct {
		method     Method
		sequential bool
	}{
		{method: MethodSplit},
		{method: MethodLACP},
		{method: MethodCQR},
		{method: MethodCVPlus},
		{method: MethodEnbPI, sequential: true},
		{method: MethodAEnbPI, sequential: true},
	}
	X, y := line(120)
	for _, test := range tests {
		test := test
		t.Run(string(test.method), func(t *testing.T) {
			cfg := testConfig(test.method)
			require.Equal(t, test.sequential, cfg.Sequential())

			m, err := New(cfg)
			require.NoError(t, err)
			require.Equal(t, test.sequential, m.Sequential())
			require.Equal(t, 0.1, m.Alpha())
			require.NotEmpty(t, m.Name())

			if _, err := m.Predict(context.Background(), X[:2], nil); err == nil {
				t.Errorf("calling Predict before Fit, an error is expected")
			}
			require.NoError(t, m.Fit(context.Background(), X, y))

			p, err := m.Predict(context.Background(), X[:8], nil)
			require.NoError(t, err)
			require.Len(t, p.Pred, 8)
			require.Len(t, p.Lower, 8)
			require.Len(t, p.Upper, 8)
			for i := range p.Pred {
				if p.Lower[i] > p.Upper[i] {
					t.Errorf("point %d, lower %v above upper %v", i, p.Lower[i], p.Upper[i])
				}
			}

			require.NoError(t, m.Update(p, y[:8]))
			if test.sequential {
				_, err := m.Predict(context.Background(), X[:8], y[:8])
				require.NoError(t, err)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  func() Config
	}{
		{name: "alpha", cfg: func() Config {
			c := testConfig(MethodSplit)
			c.Alpha = 1
			return c
		}},
		{name: "method", cfg: func() Config {
			return testConfig("BAYES")
		}},
		{name: "regressor", cfg: func() Config {
			c := testConfig(MethodSplit)
			c.Type = "TREE"
			return c
		}},
		{name: "aggregate", cfg: func() Config {
			c := testConfig(MethodEnbPI)
			c.Aggregate = "MODE"
			return c
		}},
		{name: "folds", cfg: func() Config {
			c := testConfig(MethodCVPlus)
			c.Folds = 1
			return c
		}},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.cfg()); err == nil {
				t.Errorf("calling New, an error is expected")
			}
		})
	}
}

func TestProvidePredictorFor(t *testing.T) {
	fn, err := ProvidePredictorFor(predictor.Config{Type: predictor.AlgTypeKNN, KNum: 2, Distance: geom.DistanceManhattan})
	require.NoError(t, err)
	p, err := fn()
	require.NoError(t, err)
	require.IsType(t, &knn.KNN{}, p)

	fn, err = ProvidePredictorFor(predictor.Config{Type: predictor.AlgTypeLinear})
	require.NoError(t, err)
	p, err = fn()
	require.NoError(t, err)
	require.IsType(t, &linear.Linear{}, p)

	if _, err := ProvidePredictorFor(predictor.Config{Type: predictor.AlgTypeKNN, Distance: "COSINE"}); err == nil {
		t.Errorf("calling ProvidePredictorFor with an unknown distance, an error is expected")
	}
}
