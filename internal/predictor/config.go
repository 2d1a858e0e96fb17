package predictor

import "github.com/go-sod/cpi/internal/geom"

type AlgType string

const (
	AlgTypeLinear AlgType = "LINEAR"
	AlgTypeKNN    AlgType = "KNN"
)

type Config struct {
	Type     AlgType           `envconfig:"CPI_REGRESSOR" default:"LINEAR"`
	KNum     int               `envconfig:"CPI_KNN_K" default:"5"`
	Distance geom.DistanceType `envconfig:"CPI_KNN_DISTANCE" default:"EUCLIDEAN"`
}

func (c Config) PredictorType() AlgType {
	return c.Type
}
