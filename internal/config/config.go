package cpi

import (
	"github.com/go-sod/cpi/internal/alert"
	"github.com/go-sod/cpi/internal/cache"
	"github.com/go-sod/cpi/internal/collect"
	"github.com/go-sod/cpi/internal/database"
	"github.com/go-sod/cpi/internal/dataset"
	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/interval"
	"github.com/go-sod/cpi/internal/predict"
	"github.com/go-sod/cpi/internal/scrape"
	"github.com/go-sod/cpi/internal/setup"
)

var (
	_ setup.IntervalConfigProvider   = (*Config)(nil)
	_ setup.DatasetConfigProvider    = (*Config)(nil)
	_ setup.DatabaseConfigProvider   = (*Config)(nil)
	_ setup.CacheConfigProvider      = (*Config)(nil)
	_ setup.NotifierConfigProvider   = (*Config)(nil)
	_ setup.DispatcherConfigProvider = (*Config)(nil)
	_ setup.ScrapeConfigProvider     = (*Config)(nil)
)

type Config struct {
	SrvAddr     string `envconfig:"CPI_ADDR" default:":8787"`
	GRPCAddr    string `envconfig:"CPI_GRPC_ADDR" default:":8788"`
	MetricsAddr string `envconfig:"CPI_METRICS_ADDR" default:":9090"`
	Interval    interval.Config
	Dataset     dataset.Config
	Dispatcher  dispatcher.Config
	Collect     collect.Config
	Predict     predict.Config
	Database    database.Config
	Cache       cache.Config
	Alert       alert.Config
	Scrape      scrape.Config
}

func (c *Config) IntervalConfig() *interval.Config {
	return &c.Interval
}

func (c *Config) DatasetConfig() *dataset.Config {
	return &c.Dataset
}

func (c *Config) DispatcherConfig() *dispatcher.Config {
	return &c.Dispatcher
}

func (c *Config) NotifyConfig() *alert.Config {
	return &c.Alert
}

func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}

func (c *Config) CacheConfig() *cache.Config {
	return &c.Cache
}

func (c *Config) ScrapeConfig() *scrape.Config {
	return &c.Scrape
}
