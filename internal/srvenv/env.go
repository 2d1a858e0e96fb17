package srvenv

import (
	"context"
	"fmt"

	"github.com/go-sod/cpi/internal/alert"
	"github.com/go-sod/cpi/internal/cache"
	"github.com/go-sod/cpi/internal/database"
	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/interval"
	"github.com/go-sod/cpi/internal/scrape"
)

type Option func(*SrvEnv) *SrvEnv

func New(opts ...Option) *SrvEnv {
	env := &SrvEnv{}
	for _, f := range opts {
		env = f(env)
	}

	return env
}

// SrvEnv holds the shared resources and providers of the service.
type SrvEnv struct {
	database   *database.DB
	cache      cache.Cache
	interval   interval.ProvideFn
	dispatcher dispatcher.ProvideFn
	notifier   alert.ProvideFn
	scrapper   scrape.ProvideFn
}

// ProvideScrapper is nil when no scrape target is configured.
func (s *SrvEnv) ProvideScrapper() scrape.ProvideFn {
	return s.scrapper
}

func (s *SrvEnv) ProvideNotifier() alert.ProvideFn {
	return s.notifier
}

func (s *SrvEnv) ProvideDispatcher() dispatcher.ProvideFn {
	return s.dispatcher
}

func (s *SrvEnv) ProvideInterval() interval.ProvideFn {
	return s.interval
}

func (s *SrvEnv) Database() *database.DB {
	return s.database
}

func (s *SrvEnv) Cache() cache.Cache {
	return s.cache
}

func WithNotifier(fn alert.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.notifier = fn
		return s
	}
}

func WithDispatcher(fn dispatcher.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.dispatcher = fn
		return s
	}
}

func WithInterval(fn interval.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.interval = fn
		return s
	}
}

func WithScrapper(fn scrape.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.scrapper = fn
		return s
	}
}

func WithDatabase(db *database.DB) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.database = db
		return s
	}
}

func WithCache(c cache.Cache) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.cache = c
		return s
	}
}

func (s *SrvEnv) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			return fmt.Errorf("closing cache: %w", err)
		}
	}
	if s.database != nil {
		return s.database.Close(ctx)
	}
	return nil
}
