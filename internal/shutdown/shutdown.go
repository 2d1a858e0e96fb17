// Package shutdown ties a context to process termination signals.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-sod/cpi/internal/logging"
)

// New returns a context cancelled on SIGINT or SIGTERM and its cancel func.
func New() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.WithLogger(ctx, logging.DefaultLogger())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-signalCh:
			logging.FromContext(ctx).Infof("received signal %v, shutting down", sig)
		case <-ctx.Done():
		}
		signal.Stop(signalCh)
		cancel()
	}()

	return ctx, cancel
}
