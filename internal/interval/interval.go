// Package interval builds a configured conformal method behind one
// interface, so the service and the command line do not depend on the
// method family.
package interval

import (
	"context"
	"fmt"
	"runtime"

	"github.com/go-sod/cpi/internal/enbpi"
	"github.com/go-sod/cpi/internal/geom"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/internal/predictor/knn"
	"github.com/go-sod/cpi/internal/predictor/linear"
	"github.com/go-sod/cpi/internal/predictor/meanvar"
	"github.com/go-sod/cpi/internal/regression"
	"github.com/go-sod/cpi/pkg/quantile"
)

type ProvideFn func() (Model, error)

// Model is a fitted-on-demand interval predictor at a fixed miscoverage.
type Model interface {
	Fit(ctx context.Context, X [][]float64, y []float64) error
	// Predict returns point estimates and bounds. Sequential models consume
	// yTrue, when given, to slide their residual window batch by batch.
	Predict(ctx context.Context, X [][]float64, yTrue []float64) (*predictor.Prediction, error)
	// Update feeds ground truth of an earlier prediction. It is a no-op for
	// models that are not sequential.
	Update(p *predictor.Prediction, yTrue []float64) error
	Sequential() bool
	Alpha() float64
	Name() string
}

// ProvidePredictorFor returns a constructor of untrained base regressors.
func ProvidePredictorFor(cfg predictor.Config) (predictor.ProvideFn, error) {
	switch cfg.PredictorType() {
	case predictor.AlgTypeLinear, "":
		return func() (predictor.Predictor, error) {
			return linear.New(), nil
		}, nil
	case predictor.AlgTypeKNN:
		distFn, err := geom.DistanceFor(cfg.Distance)
		if err != nil {
			return nil, err
		}
		return func() (predictor.Predictor, error) {
			return knn.New(knn.WithKNum(cfg.KNum), knn.WithDistance(distFn))
		}, nil
	default:
		return nil, fmt.Errorf("unknown regressor type: %s", cfg.Type)
	}
}

// New builds the configured method. The model still has to be fitted.
func New(cfg Config) (Model, error) {
	if !(cfg.Alpha > 0 && cfg.Alpha < 1) {
		return nil, fmt.Errorf("interval: %w, got: %v", quantile.ErrAlphaRange, cfg.Alpha)
	}
	base, err := ProvidePredictorFor(cfg.Config)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pair := func() (predictor.Predictor, predictor.Predictor, error) {
		a, err := base()
		if err != nil {
			return nil, nil, err
		}
		b, err := base()
		if err != nil {
			return nil, nil, err
		}
		return a, b, nil
	}

	opts := []regression.Option{
		regression.WithCalibRatio(cfg.CalibRatio),
		regression.WithSeed(cfg.Seed),
		regression.WithWorkers(workers),
	}
	var method *regression.Method
	switch cfg.Method {
	case MethodSplit, "":
		model, err := base()
		if err != nil {
			return nil, err
		}
		method, err = regression.NewSplitCP(model, opts...)
		if err != nil {
			return nil, err
		}
	case MethodLACP:
		mean, dispersion, err := pair()
		if err != nil {
			return nil, err
		}
		method, err = regression.NewLocallyAdaptiveCP(mean, dispersion, opts...)
		if err != nil {
			return nil, err
		}
	case MethodCQR:
		lo, hi, err := pair()
		if err != nil {
			return nil, err
		}
		method, err = regression.NewCQR(lo, hi, opts...)
		if err != nil {
			return nil, err
		}
	case MethodCVPlus:
		model, err := base()
		if err != nil {
			return nil, err
		}
		method, err = regression.NewCVPlus(model, cfg.Folds, opts...)
		if err != nil {
			return nil, err
		}
	case MethodEnbPI, MethodAEnbPI:
		return newSequential(cfg, base, workers)
	default:
		return nil, fmt.Errorf("unknown conformal method: %s", cfg.Method)
	}
	return &conformalModel{method: method, alpha: cfg.Alpha}, nil
}

func newSequential(cfg Config, base predictor.ProvideFn, workers int) (Model, error) {
	agg, ok := enbpi.AggregateFor(cfg.Aggregate)
	if !ok {
		return nil, fmt.Errorf("unknown aggregation function: %s", cfg.Aggregate)
	}
	opts := []enbpi.Option{
		enbpi.WithAggregate(agg),
		enbpi.WithSeed(cfg.Seed),
		enbpi.WithWorkers(workers),
	}
	model, err := base()
	if err != nil {
		return nil, err
	}
	var e *enbpi.Ensemble
	if cfg.Method == MethodAEnbPI {
		dispersion, err := base()
		if err != nil {
			return nil, err
		}
		mv, err := meanvar.New(model, dispersion)
		if err != nil {
			return nil, err
		}
		e, err = enbpi.NewAdaptive(mv, cfg.Bootstraps, opts...)
		if err != nil {
			return nil, err
		}
	} else {
		e, err = enbpi.New(model, cfg.Bootstraps, opts...)
		if err != nil {
			return nil, err
		}
	}
	return &sequentialModel{ensemble: e, alpha: cfg.Alpha, batch: cfg.UpdateBatch, name: string(cfg.Method)}, nil
}

type conformalModel struct {
	method *regression.Method
	alpha  float64
}

func (m *conformalModel) Fit(ctx context.Context, X [][]float64, y []float64) error {
	return m.method.Fit(ctx, X, y)
}

// Predict fills the point estimate with the interval midpoint for cv+.
func (m *conformalModel) Predict(_ context.Context, X [][]float64, _ []float64) (*predictor.Prediction, error) {
	p, err := m.method.Predict(X, m.alpha)
	if err != nil {
		return nil, err
	}
	if p.Pred == nil {
		p.Pred = make([]float64, len(p.Lower))
		for i := range p.Pred {
			p.Pred[i] = (p.Lower[i] + p.Upper[i]) / 2
		}
	}
	return p, nil
}

func (m *conformalModel) Update(*predictor.Prediction, []float64) error {
	return nil
}

func (m *conformalModel) Sequential() bool {
	return false
}

func (m *conformalModel) Alpha() float64 {
	return m.alpha
}

func (m *conformalModel) Name() string {
	return m.method.Name()
}

type sequentialModel struct {
	ensemble *enbpi.Ensemble
	alpha    float64
	batch    int
	name     string
}

func (m *sequentialModel) Fit(ctx context.Context, X [][]float64, y []float64) error {
	return m.ensemble.Fit(ctx, X, y)
}

func (m *sequentialModel) Predict(ctx context.Context, X [][]float64, yTrue []float64) (*predictor.Prediction, error) {
	return m.ensemble.Predict(ctx, X, m.alpha, yTrue, m.batch)
}

func (m *sequentialModel) Update(p *predictor.Prediction, yTrue []float64) error {
	return m.ensemble.Update(p, yTrue)
}

func (m *sequentialModel) Sequential() bool {
	return true
}

func (m *sequentialModel) Alpha() float64 {
	return m.alpha
}

func (m *sequentialModel) Name() string {
	return m.name
}
