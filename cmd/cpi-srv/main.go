package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-sod/cpi/internal/buildinfo"
	"github.com/go-sod/cpi/internal/collect"
	cpi "github.com/go-sod/cpi/internal/config"
	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/monitoring"
	"github.com/go-sod/cpi/internal/predict"
	"github.com/go-sod/cpi/internal/server"
	"github.com/go-sod/cpi/internal/setup"
	"github.com/go-sod/cpi/internal/shutdown"
)

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(
		os.Stdout,
		"%s: %s, %s\n",
		buildinfo.Info.Name(),
		buildinfo.Info.Time(),
		buildinfo.Info.Tag(),
	)

	ctx, done := shutdown.New()
	logger := logging.FromContext(ctx)
	if err := run(ctx, done); err != nil {
		logger.Fatal(err)
	}

	defer done()
}

func run(ctx context.Context, cancel func()) error {
	logger := logging.FromContext(ctx)
	config := cpi.Config{}
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}

	// the alert manager and the dispatcher report on shutdown, and so does
	// the scrapper when configured
	shutdownCount := 1 + dispatcher.ShutdownReceivers
	if env.ProvideScrapper() != nil {
		shutdownCount++
	}
	defer func() {
		if err := env.Close(context.Background()); err != nil {
			logger.Errorf("env.Close: %v", err)
		}
	}()

	if err := monitoring.Register(); err != nil {
		return fmt.Errorf("monitoring.Register: %w", err)
	}
	metricsHandler, err := monitoring.NewHandler()
	if err != nil {
		return fmt.Errorf("monitoring.NewHandler: %w", err)
	}

	shutdownCh := make(chan error, shutdownCount)
	notifier, err := env.ProvideNotifier()(shutdownCh)
	if err != nil {
		return fmt.Errorf("notifier provider function error: %w", err)
	}
	manager, err := env.ProvideDispatcher()(notifier, shutdownCh)
	if err != nil {
		return fmt.Errorf("dispatcher provider function error: %w", err)
	}
	if err := notifier.Run(ctx); err != nil {
		return fmt.Errorf("notifier.Run: %w", err)
	}
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("dispatcher.Run: %w", err)
	}

	if provideScrapper := env.ProvideScrapper(); provideScrapper != nil {
		scrapper, err := provideScrapper(manager, shutdownCh)
		if err != nil {
			return fmt.Errorf("scrapper provider function error: %w", err)
		}
		if err := scrapper.Run(ctx); err != nil {
			return fmt.Errorf("scrapper.Run: %w", err)
		}
	}

	srv, err := server.New(config.SrvAddr)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	predictHandler, err := predict.NewHandler(&config.Predict, manager)
	if err != nil {
		return fmt.Errorf("predict.NewHandler: %w", err)
	}
	collectHandler, err := collect.NewHandler(&config.Collect, manager)
	if err != nil {
		return fmt.Errorf("collect.NewHandler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/predict", predictHandler)
	mux.Handle("/collect", collectHandler)
	mux.Handle("/health", server.HandleHealth(ctx))

	go func() {
		if err := srv.ServeHTTPHandler(ctx, mux); err != nil {
			logger.Errorf("http server: %v", err)
			cancel()
		}
	}()

	if config.GRPCAddr != "" {
		grpcSrv, err := server.New(config.GRPCAddr)
		if err != nil {
			return fmt.Errorf("server.New: %w", err)
		}
		go func() {
			if err := grpcSrv.ServeGRPC(ctx, server.NewHealthGRPC(ctx)); err != nil {
				logger.Errorf("grpc server: %v", err)
				cancel()
			}
		}()
	}

	if config.MetricsAddr != "" {
		// pprof registers itself on the default mux
		http.Handle("/metrics", metricsHandler)
		go func() {
			if err := http.ListenAndServe(config.MetricsAddr, nil); err != nil {
				logger.Errorf("metrics server: %v", err)
				cancel()
			}
		}()
	}

	var firstErr error
	for i := 0; i < shutdownCount; i++ {
		if err := <-shutdownCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
