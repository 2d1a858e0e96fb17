// Package dataset reads (X, y) regression sets from CSV and writes
// interval results back.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-sod/cpi/internal/predictor"
)

var ErrNoRows = errors.New("dataset has no rows")

type Config struct {
	Path   string `envconfig:"CPI_DATASET_PATH"`
	Header bool   `envconfig:"CPI_DATASET_HEADER" default:"true"`
	// Target is the index of the target column, negative values count from
	// the end.
	Target int `envconfig:"CPI_DATASET_TARGET" default:"-1"`
}

// Set is a regression dataset.
type Set struct {
	Columns []string
	X       [][]float64
	Y       []float64
}

func (s *Set) Len() int {
	return len(s.Y)
}

// Split returns the first n rows and the rest.
func (s *Set) Split(n int) (*Set, *Set) {
	if n > s.Len() {
		n = s.Len()
	}
	return &Set{Columns: s.Columns, X: s.X[:n], Y: s.Y[:n]},
		&Set{Columns: s.Columns, X: s.X[n:], Y: s.Y[n:]}
}

func LoadFile(cfg Config) (*Set, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(f, cfg.Header, cfg.Target)
}

// Load parses numeric CSV rows. Every column but target is a feature.
func Load(r io.Reader, header bool, target int) (*Set, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	set := &Set{}
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		line++
		col := target
		if col < 0 {
			col += len(record)
		}
		if col < 0 || col >= len(record) || len(record) < 2 {
			return nil, fmt.Errorf("line %d: target column %d out of %d columns", line, target, len(record))
		}
		if header && line == 1 {
			set.Columns = append([]string{}, record...)
			continue
		}

		vec := make([]float64, 0, len(record)-1)
		var y float64
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i, err)
			}
			if i == col {
				y = v
				continue
			}
			vec = append(vec, v)
		}
		set.X = append(set.X, vec)
		set.Y = append(set.Y, y)
	}
	if len(set.Y) == 0 {
		return nil, ErrNoRows
	}
	if _, err := predictor.CheckFeatures(set.X, len(set.X[0])); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	return set, nil
}

// WriteIntervals writes one row per point: y, pred, lower, upper. y is left
// empty when yTrue is nil and pred when the prediction has no point
// estimate.
func WriteIntervals(w io.Writer, yTrue []float64, p *predictor.Prediction) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"y", "pred", "lower", "upper"}); err != nil {
		return err
	}
	format := func(v []float64, i int) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(v[i], 'g', -1, 64)
	}
	for i := 0; i < p.Len(); i++ {
		record := []string{format(yTrue, i), format(p.Pred, i), format(p.Lower, i), format(p.Upper, i)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
