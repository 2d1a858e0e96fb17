package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/go-sod/cpi/internal/predictor"
)

type Status uint8

const (
	// StatusPending is a prediction waiting for its ground truth.
	StatusPending Status = iota
	StatusObserved
)

// Observation is one served interval and, once collected, its ground truth.
type Observation struct {
	ID         uuid.UUID `json:"id"`
	Vec        []float64 `json:"vector"`
	Pred       float64   `json:"pred"`
	Lower      float64   `json:"lower"`
	Upper      float64   `json:"upper"`
	Var        float64   `json:"var,omitempty"`
	HasVar     bool      `json:"-"`
	Value      float64   `json:"value,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	ObservedAt time.Time `json:"observedAt,omitempty"`
}

// FromPrediction returns pending observations for the points of p.
func FromPrediction(X [][]float64, p *predictor.Prediction, createdAt time.Time) []Observation {
	out := make([]Observation, p.Len())
	for i := range out {
		out[i] = Observation{
			ID:        uuid.New(),
			Vec:       X[i],
			Lower:     p.Lower[i],
			Upper:     p.Upper[i],
			Status:    StatusPending,
			CreatedAt: createdAt,
		}
		if p.Pred != nil {
			out[i].Pred = p.Pred[i]
		}
		if p.Var != nil {
			out[i].Var, out[i].HasVar = p.Var[i], true
		}
	}
	return out
}

func (o Observation) IsPending() bool {
	return o.Status == StatusPending
}

func (o Observation) IsObserved() bool {
	return o.Status == StatusObserved
}

// Observe records the ground truth.
func (o *Observation) Observe(value float64, at time.Time) {
	o.Value = value
	o.Status = StatusObserved
	o.ObservedAt = at
}

// Covered reports whether the observed value fell inside the interval.
func (o Observation) Covered() bool {
	return o.IsObserved() && o.Lower <= o.Value && o.Value <= o.Upper
}

func (o Observation) Width() float64 {
	return o.Upper - o.Lower
}

// Prediction rebuilds the prediction tuple of a batch together with the
// observed values, in the same order.
func Prediction(obs []Observation) (*predictor.Prediction, []float64) {
	p := &predictor.Prediction{
		Pred:  make([]float64, len(obs)),
		Lower: make([]float64, len(obs)),
		Upper: make([]float64, len(obs)),
	}
	values := make([]float64, len(obs))
	withVar := len(obs) > 0
	for i := range obs {
		withVar = withVar && obs[i].HasVar
	}
	if withVar {
		p.Var = make([]float64, len(obs))
	}
	for i, o := range obs {
		p.Pred[i], p.Lower[i], p.Upper[i] = o.Pred, o.Lower, o.Upper
		if withVar {
			p.Var[i] = o.Var
		}
		values[i] = o.Value
	}
	return p, values
}
