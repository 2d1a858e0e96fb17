package splitting

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

func dataset(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{float64(i)}
		y[i] = float64(i)
	}
	return X, y
}

func TestKFold(t *testing.T) {
	X, y := dataset(23)
	folds, err := KFold(5, 7).Split(X, y)
	require.NoError(t, err)
	require.Len(t, folds, 5)

	var calib []float64
	for i, f := range folds {
		if len(f.XFit)+len(f.XCalib) != len(X) {
			t.Errorf("fold %d, sizes got: %d + %d, expected total: %d", i, len(f.XFit), len(f.XCalib), len(X))
		}
		seen := map[float64]bool{}
		for _, v := range f.YFit {
			seen[v] = true
		}
		for j, v := range f.YCalib {
			if seen[v] {
				t.Errorf("fold %d, value %v is in both the fit and the calibration set", i, v)
			}
			if f.XCalib[j][0] != v {
				t.Errorf("fold %d, rows and targets are not aligned", i)
			}
		}
		calib = append(calib, f.YCalib...)
	}
	sort.Float64s(calib)
	for i := range calib {
		if calib[i] != float64(i) {
			t.Fatalf("calibration partitions must cover the data exactly once, got: %v", calib)
		}
	}
}

func TestKFold_Deterministic(t *testing.T) {
	X, y := dataset(10)
	a, err := KFold(2, 3).Split(X, y)
	require.NoError(t, err)
	b, err := KFold(2, 3).Split(X, y)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestRandom(t *testing.T) {
	X, y := dataset(100)
	folds, err := Random(0.2, 1).Split(X, y)
	require.NoError(t, err)
	require.Len(t, folds, 1)
	require.Len(t, folds[0].XCalib, 20)
	require.Len(t, folds[0].XFit, 80)
}

func TestSplitter_Errors(t *testing.T) {
	X, y := dataset(3)
	tests := []struct {
		name     string
		splitter Splitter
	}{
		{name: "kfold_k1", splitter: KFold(1, 0)},
		{name: "kfold_too_many", splitter: KFold(4, 0)},
		{name: "random_ratio", splitter: Random(1.5, 0)},
		{name: "random_tiny", splitter: Random(0.1, 0)},
		{name: "identity_empty", splitter: Identity(nil, nil, nil, nil)},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			if _, err := test.splitter.Split(X, y); err == nil {
				t.Errorf("calling Split, an error is expected")
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	folds, err := Identity(nil, nil, [][]float64{{1}}, []float64{2}).Split(nil, nil)
	require.NoError(t, err)
	require.Len(t, folds, 1)
	require.Equal(t, []float64{2}, folds[0].YCalib)
}

func TestPermutation(t *testing.T) {
	p := Permutation(50, 0)
	seen := make([]bool, 50)
	for _, v := range p {
		seen[v] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("calling Permutation, index %d is missing", i)
		}
	}
}

func TestStreamSeed(t *testing.T) {
	seen := map[uint32]bool{}
	firstDraws := map[uint32]int{}
	for seed := uint32(0); seed < 4; seed++ {
		for stream := uint64(0); stream < 64; stream++ {
			s := StreamSeed(seed, stream)
			if s == 0 {
				t.Fatalf("calling StreamSeed(%d, %d), got: 0", seed, stream)
			}
			if seen[s] {
				t.Fatalf("calling StreamSeed(%d, %d), state %d is repeated", seed, stream, s)
			}
			seen[s] = true

			var rng fastrand.RNG
			rng.Seed(s)
			firstDraws[rng.Uint32n(100)]++
		}
	}
	for draw, n := range firstDraws {
		if n > 16 {
			t.Errorf("calling StreamSeed, first draw %d repeated %d times out of 256 streams", draw, n)
		}
	}
}

func TestPermutation_Seeds(t *testing.T) {
	a, b := Permutation(50, 1), Permutation(50, 2)
	if a[0] == b[0] && a[1] == b[1] && a[2] == b[2] {
		t.Errorf("calling Permutation with seeds 1 and 2, got the same prefix: %v", a[:3])
	}
}
