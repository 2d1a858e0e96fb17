// Package enbpi implements ensemble batch prediction intervals: bootstrap
// models, leave-one-out residuals through the out-of-bag matrix and an
// online residual window for sequential data.
package enbpi

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/nonconformity"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/internal/splitting"
	"github.com/go-sod/cpi/pkg/quantile"
	"github.com/go-sod/cpi/pkg/rworker"
	"github.com/go-sod/cpi/pkg/window"
)

var (
	ErrNotFitted      = errors.New("ensemble is not fitted")
	ErrNeverOutOfBag  = errors.New("training sample is included in all bootstrap sets, increase the number of bootstrap models")
	ErrTooFewSamples  = errors.New("at least two training samples are required")
	ErrLength         = errors.New("length mismatch")
	ErrBootstrapCount = errors.New("number of bootstrap models must be positive")
)

type Option func(*Ensemble)

// WithAggregate sets the reduction of leave-one-out estimates, Mean by
// default.
func WithAggregate(fn AggregateFn) Option {
	return func(e *Ensemble) {
		e.aggregate = fn
	}
}

// WithSeed makes resampling reproducible. Bootstrap b uses seed+b.
func WithSeed(seed uint32) Option {
	return func(e *Ensemble) {
		e.seed = seed
		e.seeded = true
	}
}

func WithWorkers(n int) Option {
	return func(e *Ensemble) {
		e.workers = n
	}
}

// New returns an EnbPI ensemble of b copies of model with constant width
// intervals.
func New(model predictor.Predictor, b int, opts ...Option) (*Ensemble, error) {
	return newEnsemble(model, b, nonconformity.Absolute, false, opts...)
}

// NewAdaptive returns an ensemble whose interval width scales with the
// dispersion reported in Prediction.Var by model.
func NewAdaptive(model predictor.Predictor, b int, opts ...Option) (*Ensemble, error) {
	return newEnsemble(model, b, nonconformity.Scaled, true, opts...)
}

func newEnsemble(model predictor.Predictor, b int, strategy nonconformity.Strategy, adaptive bool, opts ...Option) (*Ensemble, error) {
	if model == nil {
		return nil, fmt.Errorf("enbpi: predictor is required")
	}
	if b < 1 {
		return nil, fmt.Errorf("%w, got: %d", ErrBootstrapCount, b)
	}
	e := &Ensemble{
		model:     model,
		b:         b,
		strategy:  strategy,
		adaptive:  adaptive,
		aggregate: Mean,
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.aggregate == nil {
		return nil, fmt.Errorf("enbpi: aggregation function is required")
	}
	if !e.seeded {
		e.seed = fastrand.Uint32()
	}
	return e, nil
}

type Ensemble struct {
	mtx sync.RWMutex

	model     predictor.Predictor
	b         int
	strategy  nonconformity.Strategy
	adaptive  bool
	aggregate AggregateFn
	seed      uint32
	seeded    bool
	workers   int

	// T×B, row i averages the models for which sample i is out of bag
	oob       *mat.Dense
	boot      []predictor.Predictor
	residuals *window.Window
}

// bootstrap draws t indexes with replacement until at least one index is
// left out and returns the draw and its out-of-bag set.
func bootstrap(rng *fastrand.RNG, t int) ([]int, []int) {
	for {
		in := make([]bool, t)
		draw := make([]int, t)
		for i := range draw {
			draw[i] = int(rng.Uint32n(uint32(t)))
			in[draw[i]] = true
		}
		var oob []int
		for i, ok := range in {
			if !ok {
				oob = append(oob, i)
			}
		}
		if len(oob) > 0 {
			return draw, oob
		}
	}
}

// Fit trains the bootstrap models and stores the leave-one-out residuals of
// the training set as the initial residual window.
func (e *Ensemble) Fit(ctx context.Context, X [][]float64, y []float64) error {
	logger := logging.FromContext(ctx)

	t := len(X)
	if t != len(y) {
		return fmt.Errorf("%w: %d rows, %d targets", ErrLength, t, len(y))
	}
	if t < 2 {
		return ErrTooFewSamples
	}

	draws := make([][]int, e.b)
	oob := mat.NewDense(t, e.b, nil)
	for b := 0; b < e.b; b++ {
		var rng fastrand.RNG
		rng.Seed(splitting.StreamSeed(e.seed, uint64(b)))
		draw, out := bootstrap(&rng, t)
		draws[b] = draw
		for _, i := range out {
			oob.Set(i, b, 1)
		}
	}
	for i := 0; i < t; i++ {
		row := oob.RawRowView(i)
		sum := floats.Sum(row)
		if sum == 0 {
			return fmt.Errorf("%w: sample %d with %d models", ErrNeverOutOfBag, i, e.b)
		}
		floats.Scale(1/sum, row)
	}

	boot := make([]predictor.Predictor, e.b)
	err := rworker.Each(ctx, e.workers, e.b, func(ctx context.Context, b int) error {
		model := e.model.Clone()
		xs, ys := predictor.Rows(X, y, draws[b])
		if err := model.Fit(ctx, xs, ys); err != nil {
			return fmt.Errorf("bootstrap model %d: %w", b, err)
		}
		boot[b] = model
		return nil
	})
	if err != nil {
		return err
	}

	preds, sigmas, err := e.predictAll(ctx, boot, X)
	if err != nil {
		return err
	}
	loo := &predictor.Prediction{Pred: make([]float64, t)}
	if e.adaptive {
		loo.Var = make([]float64, t)
	}
	for i := 0; i < t; i++ {
		row := oob.RawRowView(i)
		for b, w := range row {
			if w == 0 {
				continue
			}
			loo.Pred[i] += w * preds.At(b, i)
			if e.adaptive {
				loo.Var[i] += w * sigmas.At(b, i)
			}
		}
	}
	residuals, err := e.strategy.Score(y, loo)
	if err != nil {
		return fmt.Errorf("enbpi residuals: %w", err)
	}

	e.mtx.Lock()
	e.oob = oob
	e.boot = boot
	e.residuals = window.New(t, residuals...)
	e.mtx.Unlock()

	logger.Debugf("enbpi fitted %d bootstrap models on %d samples", e.b, t)
	return nil
}

// predictAll returns B×n matrices of the point and dispersion predictions of
// every model. The dispersion matrix is nil for the constant width variant.
func (e *Ensemble) predictAll(ctx context.Context, boot []predictor.Predictor, X [][]float64) (*mat.Dense, *mat.Dense, error) {
	n := len(X)
	preds := mat.NewDense(len(boot), n, nil)
	var sigmas *mat.Dense
	if e.adaptive {
		sigmas = mat.NewDense(len(boot), n, nil)
	}
	err := rworker.Each(ctx, e.workers, len(boot), func(_ context.Context, b int) error {
		p, err := boot[b].Predict(X)
		if err != nil {
			return fmt.Errorf("bootstrap model %d predict: %w", b, err)
		}
		if len(p.Pred) != n {
			return fmt.Errorf("%w: bootstrap model %d returned %d predictions for %d points", ErrLength, b, len(p.Pred), n)
		}
		preds.SetRow(b, p.Pred)
		if e.adaptive {
			if len(p.Var) != n {
				return fmt.Errorf("bootstrap model %d: %w", b, nonconformity.ErrMissingVar)
			}
			sigmas.SetRow(b, p.Var)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return preds, sigmas, nil
}

// Predict returns intervals at miscoverage alpha.
//
// Without yTrue, or with s <= 0, X is a single batch and the residual window
// is left untouched. Otherwise X is cut into batches of s points followed by
// the remainder. After each batch its residuals against yTrue replace the
// oldest ones in the window and the next batch uses the updated quantile.
func (e *Ensemble) Predict(ctx context.Context, X [][]float64, alpha float64, yTrue []float64, s int) (*predictor.Prediction, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("enbpi: %w, got: %v", quantile.ErrAlphaRange, alpha)
	}
	if yTrue != nil && len(yTrue) != len(X) {
		return nil, fmt.Errorf("%w: %d points, %d targets", ErrLength, len(X), len(yTrue))
	}
	sequential := yTrue != nil
	if sequential {
		e.mtx.Lock()
		defer e.mtx.Unlock()
	} else {
		e.mtx.RLock()
		defer e.mtx.RUnlock()
	}
	if e.boot == nil {
		return nil, ErrNotFitted
	}

	out := &predictor.Prediction{
		Pred:  make([]float64, 0, len(X)),
		Lower: make([]float64, 0, len(X)),
		Upper: make([]float64, 0, len(X)),
	}
	if e.adaptive {
		out.Var = make([]float64, 0, len(X))
	}
	for _, batch := range batches(len(X), s, sequential) {
		from, to := batch[0], batch[1]
		q, err := quantile.Linear(e.residuals.Values(), 1-alpha)
		if err != nil {
			return nil, fmt.Errorf("enbpi residual quantile: %w", err)
		}
		p, err := e.predictBatch(ctx, X[from:to])
		if err != nil {
			return nil, err
		}
		qs := make([]float64, len(p.Pred))
		for i := range qs {
			qs[i] = q
		}
		lo, hi, err := e.strategy.Interval(p, qs)
		if err != nil {
			return nil, fmt.Errorf("enbpi interval: %w", err)
		}
		out.Pred = append(out.Pred, p.Pred...)
		out.Lower = append(out.Lower, lo...)
		out.Upper = append(out.Upper, hi...)
		if e.adaptive {
			out.Var = append(out.Var, p.Var...)
		}
		if sequential {
			if err := e.update(p, yTrue[from:to]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func batches(n, s int, sequential bool) [][2]int {
	if n == 0 {
		return nil
	}
	if !sequential || s <= 0 || s >= n {
		return [][2]int{{0, n}}
	}
	full := n / s
	out := make([][2]int, 0, full+1)
	for i := 0; i < full; i++ {
		out = append(out, [2]int{i * s, (i + 1) * s})
	}
	if rem := n % s; rem > 0 {
		out = append(out, [2]int{full * s, n})
	}
	return out
}

// predictBatch aggregates the leave-one-out estimates of X.
func (e *Ensemble) predictBatch(ctx context.Context, X [][]float64) (*predictor.Prediction, error) {
	preds, sigmas, err := e.predictAll(ctx, e.boot, X)
	if err != nil {
		return nil, err
	}
	var loo mat.Dense
	loo.Mul(e.oob, preds)
	p := &predictor.Prediction{Pred: e.aggregate(&loo)}
	if e.adaptive {
		var looVar mat.Dense
		looVar.Mul(e.oob, sigmas)
		p.Var = e.aggregate(&looVar)
	}
	return p, nil
}

// Update slides the residual window with the residuals of an earlier
// prediction against late ground truth.
func (e *Ensemble) Update(p *predictor.Prediction, yTrue []float64) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.boot == nil {
		return ErrNotFitted
	}
	return e.update(p, yTrue)
}

func (e *Ensemble) update(p *predictor.Prediction, yTrue []float64) error {
	residuals, err := e.strategy.Score(yTrue, p)
	if err != nil {
		return fmt.Errorf("enbpi update: %w", err)
	}
	e.residuals.Slide(len(residuals), residuals...)
	return nil
}

// Residuals returns the residual window, oldest first.
func (e *Ensemble) Residuals() ([]float64, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	if e.residuals == nil {
		return nil, ErrNotFitted
	}
	return e.residuals.Values(), nil
}

// ResidualQuantile is the (1-alpha) quantile the next prediction would use.
func (e *Ensemble) ResidualQuantile(alpha float64) (float64, error) {
	if !(alpha > 0 && alpha < 1) {
		return 0, fmt.Errorf("enbpi: %w, got: %v", quantile.ErrAlphaRange, alpha)
	}
	values, err := e.Residuals()
	if err != nil {
		return 0, err
	}
	return quantile.Linear(values, 1-alpha)
}

// OOBMatrix returns a copy of the row normalized out-of-bag matrix.
func (e *Ensemble) OOBMatrix() (*mat.Dense, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	if e.oob == nil {
		return nil, ErrNotFitted
	}
	return mat.DenseCopyOf(e.oob), nil
}

// Adaptive reports whether intervals scale with the predicted dispersion.
func (e *Ensemble) Adaptive() bool {
	return e.adaptive
}
