package predict

import "time"

type Config struct {
	RequestTimeout  time.Duration `envconfig:"CPI_PREDICT_REQUEST_TIMEOUT" default:"30s"`
	MaxDataItemsLen int           `envconfig:"CPI_PREDICT_MAX_DATA_ITEMS_LEN" default:"1000"`
	// ChunkSize is the number of points predicted together, chunks run
	// concurrently.
	ChunkSize int `envconfig:"CPI_PREDICT_CHUNK_SIZE" default:"64"`
}
