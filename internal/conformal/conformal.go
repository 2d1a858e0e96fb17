// Package conformal fits a model on one or several (fit, calibration) folds
// and predicts conformal intervals.
package conformal

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-sod/cpi/internal/calibration"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/internal/splitting"
	"github.com/go-sod/cpi/pkg/rworker"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported aggregation method")
	ErrNotFitted         = errors.New("conformal predictor is not fitted")
	ErrNotTrained        = errors.New("training is skipped but the predictor is not trained")
	ErrTrainInconsistent = errors.New("training can be skipped only with a single fold")
	ErrFoldMismatch      = calibration.ErrFoldMismatch
)

type Option func(*Predictor)

// WithMethod sets the fold aggregation method.
func WithMethod(method string) Option {
	return func(p *Predictor) {
		p.method = method
	}
}

// WithTrain controls whether fold models are trained. Disable it to calibrate
// an already trained model on a single fold.
func WithTrain(train bool) Option {
	return func(p *Predictor) {
		p.train = train
	}
}

// WithWorkers bounds the number of folds processed at once.
func WithWorkers(n int) Option {
	return func(p *Predictor) {
		p.workers = n
	}
}

func New(model predictor.Predictor, calibrator calibration.Calibrator, splitter splitting.Splitter, opts ...Option) (*Predictor, error) {
	if model == nil || calibrator == nil || splitter == nil {
		return nil, fmt.Errorf("conformal: predictor, calibrator and splitter are required")
	}
	p := &Predictor{
		model:      model,
		calibrator: calibrator,
		splitter:   splitter,
		method:     MethodCvPlus,
		train:      true,
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.method != MethodCvPlus {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, p.method)
	}
	return p, nil
}

// Predictor is a conformal predictor. Predict fails until Fit succeeds.
type Predictor struct {
	mtx sync.RWMutex

	model      predictor.Predictor
	calibrator calibration.Calibrator
	splitter   splitting.Splitter
	method     string
	train      bool
	workers    int

	aggregator *CrossValCpAggregator
}

type foldResult struct {
	model      predictor.Predictor
	calibrator calibration.Calibrator
}

// Fit trains and calibrates a clone of the templates on every fold. Either
// every fold succeeds or the previous state is kept.
func (p *Predictor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	logger := logging.FromContext(ctx)

	folds, err := p.splitter.Split(X, y)
	if err != nil {
		return fmt.Errorf("conformal split: %w", err)
	}
	if len(folds) == 0 {
		return splitting.ErrNoFolds
	}
	if len(folds) > 1 && !p.train {
		return fmt.Errorf("%w, got %d folds", ErrTrainInconsistent, len(folds))
	}

	results := make([]foldResult, len(folds))
	err = rworker.Each(ctx, p.workers, len(folds), func(ctx context.Context, k int) error {
		res, err := p.fitFold(ctx, folds[k])
		if err != nil {
			return fmt.Errorf("fold %d: %w", k, err)
		}
		results[k] = res
		return nil
	})
	if err != nil {
		return err
	}

	aggregator, err := NewCrossValCpAggregator(p.method)
	if err != nil {
		return err
	}
	for k, res := range results {
		aggregator.Append(k, res.model, res.calibrator)
	}

	p.mtx.Lock()
	p.aggregator = aggregator
	p.mtx.Unlock()

	logger.Debugf("conformal predictor fitted on %d folds", len(folds))
	return nil
}

func (p *Predictor) fitFold(ctx context.Context, fold splitting.Fold) (foldResult, error) {
	model := p.model.Clone()
	calibrator := p.calibrator.Clone()
	if p.train {
		if err := model.Fit(ctx, fold.XFit, fold.YFit); err != nil {
			return foldResult{}, fmt.Errorf("fit: %w", err)
		}
	} else if !model.IsTrained() {
		return foldResult{}, ErrNotTrained
	}
	pred, err := model.Predict(fold.XCalib)
	if err != nil {
		return foldResult{}, fmt.Errorf("predict calibration set: %w", err)
	}
	if err := calibrator.Fit(fold.YCalib, fold.XCalib, pred); err != nil {
		return foldResult{}, fmt.Errorf("calibrate: %w", err)
	}
	return foldResult{model: model, calibrator: calibrator}, nil
}

// Predict returns intervals at miscoverage alpha. See
// CrossValCpAggregator.Predict for the filled fields.
func (p *Predictor) Predict(X [][]float64, alpha float64) (*predictor.Prediction, error) {
	p.mtx.RLock()
	aggregator := p.aggregator
	p.mtx.RUnlock()
	if aggregator == nil {
		return nil, ErrNotFitted
	}
	return aggregator.Predict(X, alpha)
}

// Residuals returns the calibration residuals of every fold.
func (p *Predictor) Residuals() (map[int][]float64, error) {
	return p.collect(func(c calibration.Calibrator) ([]float64, error) {
		return c.Residuals()
	})
}

// Weights returns the normalized calibration weights of every fold, nil
// entries for unweighted calibrators.
func (p *Predictor) Weights() (map[int][]float64, error) {
	return p.collect(func(c calibration.Calibrator) ([]float64, error) {
		return c.Weights()
	})
}

func (p *Predictor) collect(fn func(calibration.Calibrator) ([]float64, error)) (map[int][]float64, error) {
	p.mtx.RLock()
	aggregator := p.aggregator
	p.mtx.RUnlock()
	if aggregator == nil {
		return nil, ErrNotFitted
	}
	out := make(map[int][]float64, aggregator.Len())
	for k, c := range aggregator.calibrators {
		v, err := fn(c)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Folds returns the number of fitted folds, zero before Fit.
func (p *Predictor) Folds() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	if p.aggregator == nil {
		return 0
	}
	return p.aggregator.Len()
}
