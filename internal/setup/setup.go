// Package setup turns the environment into the providers of the service.
package setup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"

	"github.com/go-sod/cpi/internal/alert"
	"github.com/go-sod/cpi/internal/cache"
	"github.com/go-sod/cpi/internal/database"
	"github.com/go-sod/cpi/internal/dataset"
	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/interval"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/scrape"
	"github.com/go-sod/cpi/internal/srvenv"
)

type IntervalConfigProvider interface {
	IntervalConfig() *interval.Config
}

type DatasetConfigProvider interface {
	DatasetConfig() *dataset.Config
}

type DispatcherConfigProvider interface {
	DispatcherConfig() *dispatcher.Config
}

type NotifierConfigProvider interface {
	NotifyConfig() *alert.Config
}

type DatabaseConfigProvider interface {
	DatabaseConfig() *database.Config
}

type CacheConfigProvider interface {
	CacheConfig() *cache.Config
}

type ScrapeConfigProvider interface {
	ScrapeConfig() *scrape.Config
}

func Setup(ctx context.Context, config interface{}) (*srvenv.SrvEnv, error) {
	logger := logging.FromContext(ctx)
	var serverEnvOpts []srvenv.Option
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var (
		db                  *database.DB
		intervalCache       cache.Cache
		generation          string
		updateBatch         int
		intervalProvideFn   interval.ProvideFn
		notifierProvideFn   alert.ProvideFn
		dispatcherProvideFn dispatcher.ProvideFn
	)
	if dbConfigProvider, ok := config.(DatabaseConfigProvider); ok {
		logger.Info("configuring db")
		dbFromEnv, err := database.NewFromEnv(ctx, dbConfigProvider.DatabaseConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		db = dbFromEnv
		serverEnvOpts = append(serverEnvOpts, srvenv.WithDatabase(db))
	}

	if cacheConfigProvider, ok := config.(CacheConfigProvider); ok {
		logger.Info("configuring interval cache")
		c, err := cache.New(ctx, cacheConfigProvider.CacheConfig())
		if err != nil {
			return nil, fmt.Errorf("unable create interval cache: %w", err)
		}
		intervalCache = c
		serverEnvOpts = append(serverEnvOpts, srvenv.WithCache(c))
	}

	if notifyConfigProvider, ok := config.(NotifierConfigProvider); ok {
		logger.Info("configuring notifier")
		provideFn, err := ProvideNotifierFor(notifyConfigProvider, db)
		if err != nil {
			return nil, fmt.Errorf("unable create notifier provide function: %w", err)
		}
		notifierProvideFn = provideFn
		serverEnvOpts = append(serverEnvOpts, srvenv.WithNotifier(notifierProvideFn))
	}

	if intervalConfigProvider, ok := config.(IntervalConfigProvider); ok {
		logger.Info("configuring interval model")
		datasetConfigProvider, ok := config.(DatasetConfigProvider)
		if !ok {
			return nil, fmt.Errorf("unable read dataset config")
		}
		provideFn, err := ProvideIntervalFor(ctx, intervalConfigProvider, datasetConfigProvider)
		if err != nil {
			return nil, fmt.Errorf("unable create interval provide function: %w", err)
		}
		intervalProvideFn = provideFn
		updateBatch = intervalConfigProvider.IntervalConfig().UpdateBatch
		generation, err = generationFor(intervalConfigProvider.IntervalConfig(), datasetConfigProvider.DatasetConfig())
		if err != nil {
			return nil, err
		}
		serverEnvOpts = append(serverEnvOpts, srvenv.WithInterval(intervalProvideFn))
	}

	if dispatcherConfigProvider, ok := config.(DispatcherConfigProvider); ok {
		logger.Info("configuring dispatcher")
		provideFn, err := ProvideDispatcherFor(dispatcherConfigProvider, intervalProvideFn, updateBatch, db, intervalCache, generation)
		if err != nil {
			return nil, fmt.Errorf("unable create dispatcher provide function: %w", err)
		}
		dispatcherProvideFn = provideFn
		serverEnvOpts = append(serverEnvOpts, srvenv.WithDispatcher(dispatcherProvideFn))
	}

	if scrapeConfigProvider, ok := config.(ScrapeConfigProvider); ok && len(scrapeConfigProvider.ScrapeConfig().Targets) > 0 {
		logger.Info("configuring ground truth scrapper")
		provideFn, err := ProvideScrapperFor(scrapeConfigProvider)
		if err != nil {
			return nil, fmt.Errorf("unable create scrapper provide function: %w", err)
		}
		serverEnvOpts = append(serverEnvOpts, srvenv.WithScrapper(provideFn))
	}

	return srvenv.New(serverEnvOpts...), nil
}

func ProvideScrapperFor(provider ScrapeConfigProvider) (scrape.ProvideFn, error) {
	cfg := provider.ScrapeConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("dont process scrapper env: %w", err)
	}
	return func(collector dispatcher.Collector, shutdownCh chan<- error) (scrape.Manager, error) {
		return scrape.New(
			collector,
			shutdownCh,
			scrape.WithInterval(cfg.Interval),
			scrape.WithMaxConcurrentRequest(cfg.MaxConcurrentRequest),
			scrape.WithRequestTimeout(cfg.RequestTimeout),
			scrape.WithTargets(cfg.Targets),
		)
	}, nil
}

func ProvideNotifierFor(provider NotifierConfigProvider, db *database.DB) (alert.ProvideFn, error) {
	cfg := provider.NotifyConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("dont process notifier env: %w", err)
	}
	targets := cfg.Targets
	if !cfg.AllowAlerts {
		targets = nil
	}
	return func(shutdownCh chan<- error) (alert.Manager, error) {
		return alert.New(
			db,
			shutdownCh,
			alert.WithMaxConcurrentRequest(cfg.MaxConcurrentRequest),
			alert.WithInterval(cfg.Interval),
			alert.WithRequestTimeout(cfg.RequestTimeout),
			alert.WithTargets(targets),
		)
	}, nil
}

// ProvideIntervalFor returns a provider that builds the configured method and
// fits it on the training dataset.
func ProvideIntervalFor(
	ctx context.Context,
	provider IntervalConfigProvider,
	datasetProvider DatasetConfigProvider,
) (interval.ProvideFn, error) {
	cfg := provider.IntervalConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("dont process interval env: %w", err)
	}
	dsCfg := datasetProvider.DatasetConfig()
	if err := envconfig.Process("", dsCfg); err != nil {
		return nil, fmt.Errorf("dont process dataset env: %w", err)
	}
	if dsCfg.Path == "" {
		return nil, fmt.Errorf("training dataset path is empty")
	}
	// fail early on an unknown method or regressor
	if _, err := interval.New(*cfg); err != nil {
		return nil, err
	}

	return func() (interval.Model, error) {
		logger := logging.FromContext(ctx)
		set, err := dataset.LoadFile(*dsCfg)
		if err != nil {
			return nil, fmt.Errorf("unable load training dataset: %w", err)
		}
		m, err := interval.New(*cfg)
		if err != nil {
			return nil, err
		}
		if err := m.Fit(ctx, set.X, set.Y); err != nil {
			return nil, fmt.Errorf("unable fit %s: %w", m.Name(), err)
		}
		logger.Infof("fitted %s on %d samples from %s", m.Name(), set.Len(), dsCfg.Path)
		return m, nil
	}, nil
}

func ProvideDispatcherFor(
	provider DispatcherConfigProvider,
	intervalProvideFn interval.ProvideFn,
	updateBatch int,
	db *database.DB,
	intervalCache cache.Cache,
	generation string,
) (dispatcher.ProvideFn, error) {
	cfg := provider.DispatcherConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("dont process dispatcher env: %w", err)
	}
	if intervalProvideFn == nil {
		return nil, fmt.Errorf("interval provider is not configured")
	}
	return func(notifier alert.Notifier, shutdownCh chan<- error) (dispatcher.Manager, error) {
		m, err := intervalProvideFn()
		if err != nil {
			return nil, err
		}
		opts := []dispatcher.Option{
			dispatcher.WithDBFlushSize(cfg.DBFlushSize),
			dispatcher.WithDBFlushTime(cfg.DBFlushTime),
			dispatcher.WithMaxItemsStored(cfg.MaxItemsStored),
			dispatcher.WithMaxStorageTime(cfg.MaxStorageTime),
			dispatcher.WithRebuildDBTime(cfg.RebuildDBTime),
			dispatcher.WithAlertWindow(cfg.AlertWindow),
			dispatcher.WithAlertTolerance(cfg.AlertTolerance),
		}
		if updateBatch > 0 {
			opts = append(opts, dispatcher.WithUpdateBatch(updateBatch))
		}
		if intervalCache != nil {
			opts = append(opts, dispatcher.WithCache(intervalCache, generation))
		}
		return dispatcher.New(db, m, notifier, shutdownCh, opts...)
	}, nil
}

// generationFor identifies a fitted model by its configuration and the
// training file, so cached intervals of another model are never served.
func generationFor(cfg *interval.Config, dsCfg *dataset.Config) (string, error) {
	info, err := os.Stat(dsCfg.Path)
	if err != nil {
		return "", fmt.Errorf("unable stat training dataset: %w", err)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%+v|%+v|%d|%d", *cfg, *dsCfg, info.Size(), info.ModTime().UnixNano())))
	return fmt.Sprintf("%x", sum[:8]), nil
}
