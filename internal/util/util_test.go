package util

import (
	"strings"
	"testing"
)

func TestHashVector(t *testing.T) {
	tests := []struct {
		name     string
		nsA, nsB string
		a, b     []float64
		equal    bool
	}{
		{name: "same", nsA: "m", nsB: "m", a: []float64{1, 2.5}, b: []float64{1, 2.5}, equal: true},
		{name: "namespace", nsA: "m", nsB: "n", a: []float64{1, 2.5}, b: []float64{1, 2.5}},
		{name: "order", nsA: "m", nsB: "m", a: []float64{1, 2}, b: []float64{2, 1}},
		{name: "separator", nsA: "m", nsB: "m", a: []float64{1, 12}, b: []float64{11, 2}},
		{name: "empty", nsA: "m", nsB: "m", a: nil, b: []float64{}, equal: true},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			got := HashVector(test.nsA, test.a) == HashVector(test.nsB, test.b)
			if got != test.equal {
				t.Errorf("calling HashVector, equal got: %v, expected: %v", got, test.equal)
			}
		})
	}
}

func TestVectorKey(t *testing.T) {
	key := VectorKey("split", []float64{1, 2})
	if !strings.HasPrefix(key, "split:") || len(key) != len("split:")+64 {
		t.Errorf("calling VectorKey, got: %v", key)
	}
}

func TestBytesBufferIsReset(t *testing.T) {
	b := GetBytesBuffer()
	b.WriteString("dirty")
	PutBytesBuffer(b)
	if got := GetBytesBuffer(); got.Len() != 0 {
		t.Errorf("calling GetBytesBuffer, length got: %v, expected: %v", got.Len(), 0)
	}
}
