// Package experiment runs one conformal method over a train/test split read
// from a TOML description and scores the resulting intervals.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/go-sod/cpi/internal/dataset"
	"github.com/go-sod/cpi/internal/evaluate"
	"github.com/go-sod/cpi/internal/geom"
	"github.com/go-sod/cpi/internal/interval"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/predictor"
)

const defaultTrainRatio = 0.8

type Data struct {
	Path   string `toml:"path"`
	Header bool   `toml:"header"`
	Target int    `toml:"target"`
}

func (d Data) config() dataset.Config {
	return dataset.Config{Path: d.Path, Header: d.Header, Target: d.Target}
}

// Config mirrors the model section of the service configuration.
type Config struct {
	Method      string  `toml:"method"`
	Alpha       float64 `toml:"alpha"`
	Folds       int     `toml:"folds"`
	Bootstraps  int     `toml:"bootstraps"`
	Seed        uint32  `toml:"seed"`
	CalibRatio  float64 `toml:"calib_ratio"`
	Aggregate   string  `toml:"aggregate"`
	UpdateBatch int     `toml:"update_batch"`
	Workers     int     `toml:"workers"`

	Regressor   string `toml:"regressor"`
	KNum        int    `toml:"knn_k"`
	KNNDistance string `toml:"knn_distance"`

	Train Data `toml:"train"`
	// Test is optional, without it the head of the training file is used
	// for fitting and the tail for testing.
	Test       Data    `toml:"test"`
	TrainRatio float64 `toml:"train_ratio"`
	// Output is an optional CSV path for the test intervals.
	Output string `toml:"output"`
}

// Default returns the configuration the service uses without environment.
func Default() Config {
	return Config{
		Method:      string(interval.MethodSplit),
		Alpha:       0.1,
		Folds:       5,
		Bootstraps:  20,
		CalibRatio:  0.2,
		Aggregate:   "MEAN",
		UpdateBatch: 1,
		Regressor:   string(predictor.AlgTypeLinear),
		KNum:        5,
		KNNDistance: string(geom.DistanceEuclidean),
		Train:       Data{Header: true, Target: -1},
		Test:        Data{Header: true, Target: -1},
		TrainRatio:  defaultTrainRatio,
	}
}

// Load decodes a TOML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode experiment %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown experiment keys: %v", undecoded)
	}
	return cfg, nil
}

func (c Config) IntervalConfig() interval.Config {
	return interval.Config{
		Config: predictor.Config{
			Type:     predictor.AlgType(c.Regressor),
			KNum:     c.KNum,
			Distance: geom.DistanceType(c.KNNDistance),
		},
		Method:      interval.Method(c.Method),
		Alpha:       c.Alpha,
		Folds:       c.Folds,
		Bootstraps:  c.Bootstraps,
		Seed:        c.Seed,
		CalibRatio:  c.CalibRatio,
		Aggregate:   c.Aggregate,
		UpdateBatch: c.UpdateBatch,
		Workers:     c.Workers,
	}
}

type Result struct {
	Method     string
	Alpha      float64
	Train      int
	YTest      []float64
	Prediction *predictor.Prediction
	Report     evaluate.Report
	FitTime    time.Duration
}

// Sets loads the train and test sets.
func (c Config) Sets() (*dataset.Set, *dataset.Set, error) {
	train, err := dataset.LoadFile(c.Train.config())
	if err != nil {
		return nil, nil, fmt.Errorf("train set: %w", err)
	}
	if c.Test.Path != "" {
		test, err := dataset.LoadFile(c.Test.config())
		if err != nil {
			return nil, nil, fmt.Errorf("test set: %w", err)
		}
		return train, test, nil
	}
	if !(c.TrainRatio > 0 && c.TrainRatio < 1) {
		return nil, nil, fmt.Errorf("train ratio must be in (0, 1), got: %v", c.TrainRatio)
	}
	fit, test := train.Split(int(float64(train.Len()) * c.TrainRatio))
	if test.Len() == 0 {
		return nil, nil, fmt.Errorf("test set is empty")
	}
	return fit, test, nil
}

// Run fits the method on the train set and predicts the test set. Sequential
// methods see the test ground truth batch by batch.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	logger := logging.FromContext(ctx)
	train, test, err := cfg.Sets()
	if err != nil {
		return nil, err
	}
	m, err := interval.New(cfg.IntervalConfig())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := m.Fit(ctx, train.X, train.Y); err != nil {
		return nil, fmt.Errorf("fit %s: %w", m.Name(), err)
	}
	fitTime := time.Since(start)
	logger.Debugf("fitted %s on %d samples in %v", m.Name(), train.Len(), fitTime)

	var yTrue []float64
	if m.Sequential() {
		yTrue = test.Y
	}
	p, err := m.Predict(ctx, test.X, yTrue)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", m.Name(), err)
	}
	report, err := evaluate.Evaluate(test.Y, p.Lower, p.Upper, m.Alpha())
	if err != nil {
		return nil, err
	}
	return &Result{
		Method:     m.Name(),
		Alpha:      m.Alpha(),
		Train:      train.Len(),
		YTest:      test.Y,
		Prediction: p,
		Report:     report,
		FitTime:    fitTime,
	}, nil
}
