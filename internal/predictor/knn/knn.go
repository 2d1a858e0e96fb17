// Package knn is a brute force k-nearest-neighbours regressor.
package knn

import (
	"context"
	"fmt"

	"github.com/go-sod/cpi/internal/geom"
	"github.com/go-sod/cpi/internal/predictor"
	"github.com/go-sod/cpi/pkg/pqueue"
)

const DefaultKNum = 5

var _ predictor.Predictor = (*KNN)(nil)

type Option func(*KNN)

func WithKNum(k int) Option {
	return func(n *KNN) {
		n.k = k
	}
}

func WithDistance(fn geom.DistanceFn) Option {
	return func(n *KNN) {
		n.distFn = fn
	}
}

func New(opts ...Option) (*KNN, error) {
	n := &KNN{k: DefaultKNum, distFn: geom.EuclideanDistance}
	for _, opt := range opts {
		opt(n)
	}
	if n.k < 1 {
		return nil, fmt.Errorf("knn: number of neighbours must be positive, got: %d", n.k)
	}
	if n.distFn == nil {
		return nil, fmt.Errorf("knn: distance function is not set")
	}
	return n, nil
}

// KNN predicts the mean target of the k closest training points.
type KNN struct {
	k      int
	distFn geom.DistanceFn
	dim    int
	data   [][]float64
	target []float64
}

// Fit memorizes the training set.
func (n *KNN) Fit(_ context.Context, X [][]float64, y []float64) error {
	dim, err := predictor.CheckTrainingSet(X, y)
	if err != nil {
		return fmt.Errorf("knn fit: %w", err)
	}
	n.dim = dim
	n.data = make([][]float64, len(X))
	for i := range X {
		n.data[i] = append([]float64{}, X[i]...)
	}
	n.target = append([]float64{}, y...)
	return nil
}

func (n *KNN) Predict(X [][]float64) (*predictor.Prediction, error) {
	if !n.IsTrained() {
		return nil, predictor.ErrNotTrained
	}
	if _, err := predictor.CheckFeatures(X, n.dim); err != nil {
		return nil, fmt.Errorf("knn predict: %w", err)
	}
	pred := make([]float64, len(X))
	for i := range X {
		neighbours, err := n.neighbours(X[i])
		if err != nil {
			return nil, err
		}
		var sum float64
		for _, nb := range neighbours {
			sum += n.target[nb.Index]
		}
		pred[i] = sum / float64(len(neighbours))
	}
	return &predictor.Prediction{Pred: pred}, nil
}

func (n *KNN) neighbours(vec []float64) ([]pqueue.Item, error) {
	pq := pqueue.New(pqueue.WithCap(uint(n.k)))
	for i, item := range n.data {
		distance, err := n.distFn(vec, item)
		if err != nil {
			return nil, fmt.Errorf("unable to compute distance between %v and %v: %w", vec, item, err)
		}
		pq.Push(i, distance)
	}
	return pq.PopAll(), nil
}

func (n *KNN) IsTrained() bool {
	return len(n.data) > 0
}

func (n *KNN) Clone() predictor.Predictor {
	c := &KNN{k: n.k, distFn: n.distFn, dim: n.dim}
	if n.data != nil {
		c.data = make([][]float64, len(n.data))
		for i := range n.data {
			c.data[i] = append([]float64{}, n.data[i]...)
		}
		c.target = append([]float64{}, n.target...)
	}
	return c
}
