package collect

import "time"

type Config struct {
	RequestTimeout  time.Duration `envconfig:"CPI_COLLECT_REQUEST_TIMEOUT" default:"60s"`
	MaxDataItemsLen int           `envconfig:"CPI_COLLECT_MAX_DATA_ITEMS_LEN" default:"10000"`
}
