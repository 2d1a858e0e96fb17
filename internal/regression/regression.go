// Package regression assembles ready to use conformal regression methods
// from a base predictor, a nonconformity strategy and a splitting scheme.
package regression

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-sod/cpi/internal/calibration"
	"github.com/go-sod/cpi/internal/conformal"
	"github.com/go-sod/cpi/internal/nonconformity"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/internal/predictor/dual"
	"github.com/go-sod/cpi/internal/predictor/meanvar"
	"github.com/go-sod/cpi/internal/splitting"
)

const (
	NameSplitCP           = "split"
	NameLocallyAdaptiveCP = "locally_adaptive"
	NameCQR               = "cqr"
	NameCVPlus            = "cv+"
)

const defaultCalibRatio = 0.2

type Option func(*Method)

// WithCalibRatio sets the share of Fit data held out for calibration.
func WithCalibRatio(ratio float64) Option {
	return func(m *Method) {
		m.calibRatio = ratio
	}
}

func WithSeed(seed uint32) Option {
	return func(m *Method) {
		m.seed = seed
	}
}

// WithTrain(false) calibrates an already trained predictor, see FitSplit.
func WithTrain(train bool) Option {
	return func(m *Method) {
		m.train = train
	}
}

// WithWeightFn enables weighted calibration.
func WithWeightFn(fn calibration.WeightFn) Option {
	return func(m *Method) {
		m.weightFn = fn
	}
}

func WithWorkers(n int) Option {
	return func(m *Method) {
		m.workers = n
	}
}

// Method is a conformal regression method. Predict fails with
// conformal.ErrNotFitted until one of the fit methods succeeds.
type Method struct {
	mtx sync.RWMutex

	name       string
	model      predictor.Predictor
	strategy   nonconformity.Strategy
	folds      int
	calibRatio float64
	seed       uint32
	train      bool
	weightFn   calibration.WeightFn
	workers    int

	cp *conformal.Predictor
}

func newMethod(name string, model predictor.Predictor, strategy nonconformity.Strategy, folds int, opts ...Option) (*Method, error) {
	m := &Method{
		name:       name,
		model:      model,
		strategy:   strategy,
		folds:      folds,
		calibRatio: defaultCalibRatio,
		train:      true,
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !(m.calibRatio > 0 && m.calibRatio < 1) {
		return nil, fmt.Errorf("%s: calibration ratio must be in (0, 1), got: %v", name, m.calibRatio)
	}
	return m, nil
}

// NewSplitCP returns split conformal prediction with absolute residuals.
func NewSplitCP(model predictor.Predictor, opts ...Option) (*Method, error) {
	if model == nil {
		return nil, fmt.Errorf("split cp: predictor is required")
	}
	return newMethod(NameSplitCP, model, nonconformity.Absolute, 0, opts...)
}

// NewLocallyAdaptiveCP scales residuals by the output of a dispersion model
// trained on the absolute residuals of the mean model.
func NewLocallyAdaptiveCP(mean, dispersion predictor.Predictor, opts ...Option) (*Method, error) {
	model, err := meanvar.New(mean, dispersion)
	if err != nil {
		return nil, fmt.Errorf("locally adaptive cp: %w", err)
	}
	return newMethod(NameLocallyAdaptiveCP, model, nonconformity.Scaled, 0, opts...)
}

// NewCQR returns conformalized quantile regression over a lower and an upper
// model.
func NewCQR(lo, hi predictor.Predictor, opts ...Option) (*Method, error) {
	model, err := dual.New(lo, hi)
	if err != nil {
		return nil, fmt.Errorf("cqr: %w", err)
	}
	return newMethod(NameCQR, model, nonconformity.CQR, 0, opts...)
}

// NewCVPlus returns the cross-validation+ method over k folds.
func NewCVPlus(model predictor.Predictor, k int, opts ...Option) (*Method, error) {
	if model == nil {
		return nil, fmt.Errorf("cv+: predictor is required")
	}
	if k < 2 {
		return nil, fmt.Errorf("cv+: at least two folds are required, got: %d", k)
	}
	return newMethod(NameCVPlus, model, nonconformity.Absolute, k, opts...)
}

func (m *Method) Name() string {
	return m.name
}

// Fit splits X, y with the method's splitter: K folds for cv+, a random
// calibration hold-out otherwise.
func (m *Method) Fit(ctx context.Context, X [][]float64, y []float64) error {
	splitter := splitting.Random(m.calibRatio, m.seed)
	if m.folds > 0 {
		splitter = splitting.KFold(m.folds, m.seed)
	}
	return m.fit(ctx, splitter, X, y)
}

// FitSplit fits on xFit, yFit and calibrates on xCalib, yCalib. With
// WithTrain(false) the fit set is ignored and the predictor must already be
// trained.
func (m *Method) FitSplit(ctx context.Context, xFit [][]float64, yFit []float64, xCalib [][]float64, yCalib []float64) error {
	if m.folds > 0 {
		return fmt.Errorf("%s: fits on %d folds, a single split is not supported", m.name, m.folds)
	}
	return m.fit(ctx, splitting.Identity(xFit, yFit, xCalib, yCalib), nil, nil)
}

func (m *Method) fit(ctx context.Context, splitter splitting.Splitter, X [][]float64, y []float64) error {
	var calibOpts []calibration.Option
	if m.weightFn != nil {
		calibOpts = append(calibOpts, calibration.WithWeightFn(m.weightFn))
	}
	calibrator, err := calibration.New(m.strategy, calibOpts...)
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	cp, err := conformal.New(m.model, calibrator, splitter,
		conformal.WithTrain(m.train),
		conformal.WithWorkers(m.workers),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	if err := cp.Fit(ctx, X, y); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	m.mtx.Lock()
	m.cp = cp
	m.mtx.Unlock()
	return nil
}

func (m *Method) predictor() (*conformal.Predictor, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if m.cp == nil {
		return nil, conformal.ErrNotFitted
	}
	return m.cp, nil
}

// Predict returns the point estimate and the interval bounds at miscoverage
// alpha. cv+ reports no point estimate.
func (m *Method) Predict(X [][]float64, alpha float64) (*predictor.Prediction, error) {
	cp, err := m.predictor()
	if err != nil {
		return nil, err
	}
	return cp.Predict(X, alpha)
}

// NonconformityScores returns the calibration scores per fold.
func (m *Method) NonconformityScores() (map[int][]float64, error) {
	cp, err := m.predictor()
	if err != nil {
		return nil, err
	}
	return cp.Residuals()
}

func (m *Method) Weights() (map[int][]float64, error) {
	cp, err := m.predictor()
	if err != nil {
		return nil, err
	}
	return cp.Weights()
}
