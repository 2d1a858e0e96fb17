package predictor

import (
	"errors"
	"testing"
)

func TestCheckTrainingSet(t *testing.T) {
	tests := []struct {
		name     string
		X        [][]float64
		y        []float64
		expected int
		err      bool
	}{
		{name: "positive", X: [][]float64{{1, 2}, {3, 4}}, y: []float64{1, 2}, expected: 2},
		{name: "empty", X: nil, y: nil, err: true},
		{name: "length", X: [][]float64{{1}}, y: []float64{1, 2}, err: true},
		{name: "ragged", X: [][]float64{{1, 2}, {3}}, y: []float64{1, 2}, err: true},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			got, err := CheckTrainingSet(test.X, test.y)
			if test.err {
				if err == nil {
					t.Errorf("calling CheckTrainingSet, an error is expected")
				}
				return
			}
			if err != nil || got != test.expected {
				t.Errorf("calling CheckTrainingSet, got: %v, %v, expected: %v", got, err, test.expected)
			}
		})
	}
	if _, err := CheckTrainingSet(nil, nil); !errors.Is(err, ErrEmptySet) {
		t.Errorf("calling CheckTrainingSet, err got: %v, expected: %v", err, ErrEmptySet)
	}
}

func TestRows(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{10, 11, 12, 13}
	xs, ys := Rows(X, y, []int{3, 1})
	if xs[0][0] != 3 || xs[1][0] != 1 || ys[0] != 13 || ys[1] != 11 {
		t.Errorf("calling Rows, got: %v %v", xs, ys)
	}
	if _, ys := Rows(X, nil, []int{0}); ys != nil {
		t.Errorf("calling Rows without targets, got: %v, expected: nil", ys)
	}
}

func TestPrediction_Len(t *testing.T) {
	var p *Prediction
	if p.Len() != 0 {
		t.Errorf("calling Len on nil, got: %d, expected: 0", p.Len())
	}
	p = &Prediction{Lower: []float64{1, 2}, Upper: []float64{3, 4}}
	if p.Len() != 2 {
		t.Errorf("calling Len, got: %d, expected: 2", p.Len())
	}
}
