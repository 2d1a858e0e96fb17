package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-sod/cpi/internal/alert"
	alertModel "github.com/go-sod/cpi/internal/alert/model"
	"github.com/go-sod/cpi/internal/cache"
	"github.com/go-sod/cpi/internal/database"
	"github.com/go-sod/cpi/internal/interval"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/monitoring"
	obsDb "github.com/go-sod/cpi/internal/observation/database"
	"github.com/go-sod/cpi/internal/observation/model"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/pkg/window"
)

var (
	ErrShuttingDown        = errors.New("dispatcher is shutting down")
	ErrUnknownObservation  = errors.New("unknown observation")
	ErrAlreadyObserved     = errors.New("observation already has a ground truth")
	ErrEmptyBatch          = errors.New("empty batch")
	errNotificationManager = errors.New("notifier instance is not created")
)

// ShutdownReceivers is the number of results a running manager sends on the
// shutdown channel.
const ShutdownReceivers = 1

type ProvideFn func(alert.Notifier, chan<- error) (Manager, error)

type Manager interface {
	PredictCollector
	Run(context.Context) error
	Stop()
}

// Predictor serves intervals and records them as pending observations.
type Predictor interface {
	Predict(ctx context.Context, vecs [][]float64) ([]model.Observation, error)
}

// Collector accepts ground truth for served intervals.
type Collector interface {
	Collect(truth ...Truth) error
}

type PredictCollector interface {
	Predictor
	Collector
}

// Truth is the observed value of an earlier prediction.
type Truth struct {
	ID    uuid.UUID
	Value float64
}

type (
	fetchObservationsFn  func(context.Context, obsDb.FilterFn) ([]model.Observation, error)
	findObservationFn    func(context.Context, uuid.UUID) (model.Observation, bool, error)
	deleteObservationsFn func(context.Context, []model.Observation) error
	appendObservationsFn func(context.Context, []model.Observation) error
)

type pullDependencies struct {
	fetchObservations  fetchObservationsFn
	findObservation    findObservationFn
	deleteObservations deleteObservationsFn
	appendObservations appendObservationsFn
}

type Options struct {
	maxItemsStored int
	maxStorageTime time.Duration
	dbFlushTime    time.Duration
	dbFlushSize    int
	rebuildDBTime  time.Duration
	updateBatch    int
	alertWindow    int
	alertTolerance float64
	cache          cache.Cache
	generation     string
	deps           pullDependencies
}

type Option func(*manager)

func WithDBFlushTime(t time.Duration) Option {
	return func(o *manager) {
		o.opts.dbFlushTime = t
	}
}

func WithDBFlushSize(n int) Option {
	return func(o *manager) {
		o.opts.dbFlushSize = n
	}
}

func WithRebuildDBTime(t time.Duration) Option {
	return func(o *manager) {
		o.opts.rebuildDBTime = t
	}
}

func WithMaxItemsStored(n int) Option {
	return func(o *manager) {
		o.opts.maxItemsStored = n
	}
}

func WithMaxStorageTime(t time.Duration) Option {
	return func(o *manager) {
		o.opts.maxStorageTime = t
	}
}

// WithUpdateBatch sets how many observations a sequential model receives per
// update.
func WithUpdateBatch(n int) Option {
	return func(o *manager) {
		o.opts.updateBatch = n
	}
}

func WithAlertWindow(n int) Option {
	return func(o *manager) {
		o.opts.alertWindow = n
	}
}

func WithAlertTolerance(t float64) Option {
	return func(o *manager) {
		o.opts.alertTolerance = t
	}
}

// WithCache serves repeated points of a non-sequential model from c. The
// generation separates entries of differently fitted models.
func WithCache(c cache.Cache, generation string) Option {
	return func(o *manager) {
		o.opts.cache = c
		o.opts.generation = generation
	}
}

func New(
	db *database.DB,
	intervalModel interval.Model,
	notifier alert.Notifier,
	shutdownCh chan<- error,
	opts ...Option,
) (*manager, error) {
	if notifier == nil {
		return nil, errNotificationManager
	}
	if intervalModel == nil {
		return nil, fmt.Errorf("interval model is not created")
	}

	d := &manager{
		collectCh:  make(chan Truth, 1024),
		shutdownCh: shutdownCh,
		model:      intervalModel,
		notifier:   notifier,
		pending:    map[uuid.UUID]model.Observation{},
		opts: Options{
			dbFlushTime:    5 * time.Second,
			dbFlushSize:    100,
			updateBatch:    1,
			alertWindow:    200,
			alertTolerance: 0.05,
		},
	}
	for _, f := range opts {
		f(d)
	}
	if d.opts.updateBatch < 1 {
		d.opts.updateBatch = 1
	}
	d.coverage = window.New(d.opts.alertWindow)

	if db != nil {
		observationDB := obsDb.New(db)
		d.opts.deps = pullDependencies{
			fetchObservations:  observationDB.FindAll,
			findObservation:    observationDB.Find,
			deleteObservations: observationDB.DeleteMany,
			appendObservations: observationDB.AppendMany,
		}
	}
	if d.opts.deps.appendObservations == nil {
		return nil, fmt.Errorf("observation storage is not created")
	}

	d.dbScheduler = newDBScheduler(dbSchedulerConfig{
		deps:           d.opts.deps,
		maxItemsStored: d.opts.maxItemsStored,
		maxStorageTime: d.opts.maxStorageTime,
		rebuildDBTime:  d.opts.rebuildDBTime,
		onDelete:       d.forget,
	})
	d.dbTxExecutor = newDBTxExecutor(dbTxExecutorOptions{
		deps:      d.opts.deps,
		flushTime: d.opts.dbFlushTime,
		flushSize: d.opts.dbFlushSize,
	})

	return d, nil
}

// manager serves intervals from one fitted model, tracks every served point
// until its ground truth arrives and watches the realized coverage.
type manager struct {
	mtx sync.RWMutex

	opts         Options
	model        interval.Model
	notifier     alert.Notifier
	dbTxExecutor *dbTxExecutor
	dbScheduler  *dbScheduler

	collectCh  chan Truth
	shutdownCh chan<- error
	done       <-chan struct{}
	closed     bool

	// served points waiting for their ground truth
	pending map[uuid.UUID]model.Observation
	// 1 for a covered observation, 0 otherwise
	coverage *window.Window
	degraded bool
	// observations not yet fed to a sequential model, owned by the collector
	updateBuf []model.Observation

	cancel func()
}

func (d *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = ctx.Done()

	if err := d.bulkLoad(ctx); err != nil {
		cancel()
		return fmt.Errorf("can not start dispatcher manager: %w", err)
	}

	go d.collector(ctx)
	go d.dbTxExecutor.flusher(ctx)
	go d.dbScheduler.schedule(ctx)

	logging.FromContext(ctx).Infof("dispatcher started, method %s, alpha %v", d.model.Name(), d.model.Alpha())
	return nil
}

func (d *manager) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *manager) Predict(ctx context.Context, vecs [][]float64) ([]model.Observation, error) {
	if len(vecs) == 0 {
		return nil, ErrEmptyBatch
	}
	d.mtx.RLock()
	if d.closed {
		d.mtx.RUnlock()
		return nil, ErrShuttingDown
	}
	d.mtx.RUnlock()

	start := time.Now()
	p, err := d.predict(ctx, vecs)
	if err != nil {
		return nil, err
	}
	monitoring.RecordPredict(ctx, d.model.Name(), p.Lower, p.Upper, time.Since(start))

	list := model.FromPrediction(vecs, p, time.Now())
	d.mtx.Lock()
	for i := range list {
		d.pending[list[i].ID] = list[i]
	}
	d.mtx.Unlock()
	d.dbTxExecutor.write(ctx, list...)

	return list, nil
}

// predict asks the model for the points missing from the cache.
func (d *manager) predict(ctx context.Context, vecs [][]float64) (*predictor.Prediction, error) {
	c := d.opts.cache
	if c == nil || d.model.Sequential() {
		p, err := d.model.Predict(ctx, vecs, nil)
		if err != nil {
			return nil, fmt.Errorf("unable predict: %w", err)
		}
		return p, nil
	}

	logger := logging.FromContext(ctx)
	out := &predictor.Prediction{
		Pred:  make([]float64, len(vecs)),
		Lower: make([]float64, len(vecs)),
		Upper: make([]float64, len(vecs)),
	}
	withVar := true
	keys := make([]string, len(vecs))
	var (
		missIdx []int
		missX   [][]float64
		entries = make([]cache.Entry, len(vecs))
	)
	for i, vec := range vecs {
		keys[i] = cache.Key(d.opts.generation, vec)
		e, ok, err := c.Get(ctx, keys[i])
		if err != nil {
			logger.Warnf("interval cache: %v", err)
		}
		if !ok {
			missIdx = append(missIdx, i)
			missX = append(missX, vec)
			continue
		}
		entries[i] = e
	}

	if len(missX) > 0 {
		p, err := d.model.Predict(ctx, missX, nil)
		if err != nil {
			return nil, fmt.Errorf("unable predict: %w", err)
		}
		for j, i := range missIdx {
			e := cache.Entry{Lower: p.Lower[j], Upper: p.Upper[j]}
			if p.Pred != nil {
				e.Pred = p.Pred[j]
			}
			if p.Var != nil {
				e.Var, e.HasVar = p.Var[j], true
			}
			entries[i] = e
			if err := c.Set(ctx, keys[i], e); err != nil {
				logger.Warnf("interval cache: %v", err)
			}
		}
	}

	for i, e := range entries {
		out.Pred[i], out.Lower[i], out.Upper[i] = e.Pred, e.Lower, e.Upper
		withVar = withVar && e.HasVar
	}
	if withVar {
		out.Var = make([]float64, len(entries))
		for i, e := range entries {
			out.Var[i] = e.Var
		}
	}
	return out, nil
}

func (d *manager) Collect(truth ...Truth) error {
	d.mtx.RLock()
	if d.closed {
		d.mtx.RUnlock()
		return ErrShuttingDown
	}
	d.mtx.RUnlock()
	for i := range truth {
		select {
		case d.collectCh <- truth[i]:
		case <-d.done:
			return ErrShuttingDown
		}
	}
	return nil
}

// bulkLoad restores pending points and replays the stored ground truth in
// the order it arrived, which rebuilds the residual window of sequential
// models and the rolling coverage.
func (d *manager) bulkLoad(ctx context.Context) error {
	data, err := d.opts.deps.fetchObservations(ctx, nil)
	if err != nil {
		return fmt.Errorf("error fetching observations: %w", err)
	}

	var observed []model.Observation
	d.mtx.Lock()
	for _, obs := range data {
		if obs.IsPending() {
			d.pending[obs.ID] = obs
			continue
		}
		observed = append(observed, obs)
	}
	d.mtx.Unlock()

	sort.SliceStable(observed, func(i, j int) bool {
		return observed[i].ObservedAt.Before(observed[j].ObservedAt)
	})

	for i := range observed {
		d.track(ctx, observed[i], false)
		if err := d.queueUpdate(observed[i]); err != nil {
			return fmt.Errorf("replay ground truth: %w", err)
		}
	}
	if err := d.flushUpdates(); err != nil {
		return fmt.Errorf("replay ground truth: %w", err)
	}

	logging.FromContext(ctx).Infof("restored %d pending and %d observed points", len(data)-len(observed), len(observed))
	return nil
}

func (d *manager) resolve(ctx context.Context, id uuid.UUID) (model.Observation, error) {
	d.mtx.RLock()
	obs, ok := d.pending[id]
	d.mtx.RUnlock()
	if ok {
		return obs, nil
	}

	obs, found := d.dbTxExecutor.lookup(id)
	if !found {
		var err error
		obs, found, err = d.opts.deps.findObservation(ctx, id)
		if err != nil {
			return model.Observation{}, fmt.Errorf("find observation %s: %w", id, err)
		}
	}
	if !found {
		return model.Observation{}, fmt.Errorf("%w: %s", ErrUnknownObservation, id)
	}
	if obs.IsObserved() {
		return model.Observation{}, fmt.Errorf("%w: %s", ErrAlreadyObserved, id)
	}
	return obs, nil
}

func (d *manager) process(ctx context.Context, truth Truth) error {
	obs, err := d.resolve(ctx, truth.ID)
	if err != nil {
		return err
	}
	obs.Observe(truth.Value, time.Now())

	d.mtx.Lock()
	delete(d.pending, obs.ID)
	d.mtx.Unlock()
	d.dbTxExecutor.write(ctx, obs)

	d.track(ctx, obs, true)
	return d.queueUpdate(obs)
}

// track adds an observation to the rolling coverage and raises an alert
// when the coverage falls below the target.
func (d *manager) track(ctx context.Context, obs model.Observation, notify bool) {
	hit, covered := 0.0, 0
	if obs.Covered() {
		hit, covered = 1, 1
	}
	d.coverage.Push(hit)

	var sum float64
	values := d.coverage.Values()
	for _, v := range values {
		sum += v
	}
	rate := sum / float64(len(values))
	if notify {
		monitoring.RecordObserved(ctx, d.model.Name(), 1, covered, rate)
	}

	if d.coverage.Len() < d.coverage.Cap() {
		return
	}
	expected := 1 - d.model.Alpha()
	if rate >= expected-d.opts.alertTolerance {
		d.degraded = false
		return
	}
	if d.degraded {
		return
	}
	d.degraded = true
	if !notify {
		return
	}
	logging.FromContext(ctx).Warnf("coverage %.4f of %s is below %.4f", rate, d.model.Name(), expected)
	monitoring.RecordAlert(ctx, d.model.Name())
	d.alert(alertModel.NewAlert(d.model.Name(), rate, expected, d.coverage.Len()))
}

func (d *manager) queueUpdate(obs model.Observation) error {
	if !d.model.Sequential() {
		return nil
	}
	d.updateBuf = append(d.updateBuf, obs)
	if len(d.updateBuf) < d.opts.updateBatch {
		return nil
	}
	return d.flushUpdates()
}

func (d *manager) flushUpdates() error {
	if len(d.updateBuf) == 0 {
		return nil
	}
	p, values := model.Prediction(d.updateBuf)
	d.updateBuf = d.updateBuf[:0]
	if err := d.model.Update(p, values); err != nil {
		return fmt.Errorf("model update: %w", err)
	}
	return nil
}

// forget drops deleted records from the pending set.
func (d *manager) forget(list []model.Observation) {
	d.mtx.Lock()
	for i := range list {
		delete(d.pending, list[i].ID)
	}
	d.mtx.Unlock()
}

func (d *manager) alert(in ...alertModel.Alert) {
	d.mtx.RLock()
	if !d.closed {
		d.mtx.RUnlock()
		d.notifier.Notify(in...)
		return
	}
	d.mtx.RUnlock()
}

// shutdown processes the ground truth already accepted, feeds the rest of
// the update buffer to the model and stores the pending writes.
func (d *manager) shutdown(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	for {
		select {
		case truth := <-d.collectCh:
			if err := d.process(ctx, truth); err != nil {
				logger.Errorf("unable process ground truth: %v", err)
			}
		default:
			if err := d.flushUpdates(); err != nil {
				logger.Errorf("dispatcher shutdown: %v", err)
			}
			if err := d.dbTxExecutor.shutdown(); err != nil {
				return fmt.Errorf("dispatcher shutdown: %w", err)
			}
			return nil
		}
	}
}

// collector is the only consumer of ground truth, so sequential updates keep
// the arrival order.
func (d *manager) collector(ctx context.Context) {
	logger := logging.FromContext(ctx)
	defer func() {
		d.shutdownCh <- d.shutdown(ctx)
	}()
	for {
		select {
		case truth := <-d.collectCh:
			if err := d.process(ctx, truth); err != nil {
				logger.Errorf("unable process ground truth: %v", err)
			}
		case <-ctx.Done():
			d.mtx.Lock()
			d.closed = true
			d.mtx.Unlock()
			return
		}
	}
}
