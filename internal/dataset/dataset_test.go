package dataset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-sod/cpi/internal/predictor"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		header   bool
		target   int
		expected *Set
		err      bool
	}{
		{
			name:   "last_column",
			input:  "x1,x2,y\n1,2,3\n4, 5,6\n",
			header: true,
			target: -1,
			expected: &Set{
				Columns: []string{"x1", "x2", "y"},
				X:       [][]float64{{1, 2}, {4, 5}},
				Y:       []float64{3, 6},
			},
		},
		{
			name:   "first_column",
			input:  "3,1,2\n6,4,5\n",
			target: 0,
			expected: &Set{
				X: [][]float64{{1, 2}, {4, 5}},
				Y: []float64{3, 6},
			},
		},
		{name: "not_a_number", input: "1,a\n", target: -1, err: true},
		{name: "ragged", input: "1,2\n1,2,3\n", target: -1, err: true},
		{name: "single_column", input: "1\n", target: -1, err: true},
		{name: "only_header", input: "x,y\n", header: true, target: -1, err: true},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			got, err := Load(strings.NewReader(test.input), test.header, test.target)
			if test.err {
				if err == nil {
					t.Errorf("calling Load, an error is expected")
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expected, got)
		})
	}
}

func TestLoad_NoRows(t *testing.T) {
	if _, err := Load(strings.NewReader(""), false, -1); !errors.Is(err, ErrNoRows) {
		t.Errorf("calling Load on empty input, err got: %v, expected: %v", err, ErrNoRows)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y\n1,2\n2,4\n3,6\n"), 0o600))

	set, err := LoadFile(Config{Path: path, Header: true, Target: -1})
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())

	head, tail := set.Split(2)
	require.Equal(t, []float64{2, 4}, head.Y)
	require.Equal(t, [][]float64{{3}}, tail.X)

	if _, err := LoadFile(Config{Path: filepath.Join(t.TempDir(), "missing.csv")}); err == nil {
		t.Errorf("calling LoadFile on a missing file, an error is expected")
	}
}

func TestWriteIntervals(t *testing.T) {
	var buf bytes.Buffer
	p := &predictor.Prediction{Lower: []float64{0, 1.5}, Upper: []float64{2, 3}}
	require.NoError(t, WriteIntervals(&buf, []float64{1, 2}, p))
	require.Equal(t, "y,pred,lower,upper\n1,,0,2\n2,,1.5,3\n", buf.String())
}
