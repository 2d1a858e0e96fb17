package interval

import (
	"github.com/go-sod/cpi/internal/predictor"
)

type Method string

const (
	MethodSplit  Method = "SPLIT"
	MethodLACP   Method = "LACP"
	MethodCQR    Method = "CQR"
	MethodCVPlus Method = "CVPLUS"
	MethodEnbPI  Method = "ENBPI"
	MethodAEnbPI Method = "AENBPI"
)

type Config struct {
	predictor.Config

	Method      Method  `envconfig:"CPI_METHOD" default:"SPLIT"`
	Alpha       float64 `envconfig:"CPI_ALPHA" default:"0.1"`
	Folds       int     `envconfig:"CPI_FOLDS" default:"5"`
	Bootstraps  int     `envconfig:"CPI_BOOTSTRAPS" default:"20"`
	Seed        uint32  `envconfig:"CPI_SEED" default:"0"`
	CalibRatio  float64 `envconfig:"CPI_CALIB_RATIO" default:"0.2"`
	Aggregate   string  `envconfig:"CPI_AGG" default:"MEAN"`
	UpdateBatch int     `envconfig:"CPI_UPDATE_BATCH" default:"1"`
	// Workers bounds fold and bootstrap parallelism, zero means one per CPU.
	Workers int `envconfig:"CPI_WORKERS" default:"0"`
}

// Sequential reports whether the method learns from ground truth after
// fitting.
func (c Config) Sequential() bool {
	return c.Method == MethodEnbPI || c.Method == MethodAEnbPI
}
