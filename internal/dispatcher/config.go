package dispatcher

import "time"

type Config struct {
	DBFlushSize    int           `envconfig:"CPI_DB_FLUSH_SIZE" default:"100"`
	DBFlushTime    time.Duration `envconfig:"CPI_DB_FLUSH_TIME" default:"5s"`
	MaxItemsStored int           `envconfig:"CPI_MAX_ITEMS_STORED" default:"100000"`
	MaxStorageTime time.Duration `envconfig:"CPI_MAX_STORAGE_TIME" default:"168h"`
	RebuildDBTime  time.Duration `envconfig:"CPI_REBUILD_DB_TIME" default:"10m"`
	AlertWindow    int           `envconfig:"CPI_ALERT_WINDOW" default:"200"`
	AlertTolerance float64       `envconfig:"CPI_ALERT_TOLERANCE" default:"0.05"`
}
