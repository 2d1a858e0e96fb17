package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/observation/model"
)

func newDBTxExecutor(opts dbTxExecutorOptions) *dbTxExecutor {
	return &dbTxExecutor{opts: opts}
}

type dbTxExecutorOptions struct {
	flushSize int
	flushTime time.Duration
	deps      pullDependencies
}

// dbTxExecutor buffers observation writes and stores them in bulk. A later
// write of the same observation replaces the earlier one.
type dbTxExecutor struct {
	mtx sync.Mutex

	opts dbTxExecutorOptions
	buf  []model.Observation
}

// shutdown stores whatever is left in the buffer. It is called by the
// dispatcher once no more writes can arrive.
func (tx *dbTxExecutor) shutdown() error {
	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	if len(tx.buf) == 0 {
		return nil
	}
	if err := tx.opts.deps.appendObservations(context.Background(), tx.buf); err != nil {
		return fmt.Errorf("txExecutor: append many operation failed: %w", err)
	}
	tx.buf = tx.buf[:0]
	return nil
}

func (tx *dbTxExecutor) write(ctx context.Context, list ...model.Observation) {
	tx.mtx.Lock()
	tx.buf = append(tx.buf, list...)
	bufLen := len(tx.buf)
	tx.mtx.Unlock()

	if tx.opts.flushSize > 0 && bufLen >= tx.opts.flushSize {
		go tx.bulkAppend(ctx)
	}
}

func (tx *dbTxExecutor) len() int {
	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	return len(tx.buf)
}

// lookup returns the newest buffered write of an observation. Records
// leave the buffer only once they are stored, so a miss means the store is
// up to date for that id.
func (tx *dbTxExecutor) lookup(id uuid.UUID) (model.Observation, bool) {
	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	for i := len(tx.buf) - 1; i >= 0; i-- {
		if tx.buf[i].ID == id {
			return tx.buf[i], true
		}
	}
	return model.Observation{}, false
}

func (tx *dbTxExecutor) bulkAppend(ctx context.Context) {
	logger := logging.FromContext(ctx)

	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	if len(tx.buf) == 0 {
		return
	}
	// the lock is held while writing so batches reach the store in order
	if err := tx.opts.deps.appendObservations(context.Background(), tx.buf); err != nil {
		logger.Errorf("txExecutor: append many operation failed: %v", err)
		return
	}
	tx.buf = tx.buf[:0]
}

func (tx *dbTxExecutor) flusher(ctx context.Context) {
	ticker := time.NewTicker(tx.opts.flushTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tx.bulkAppend(ctx)
		case <-ctx.Done():
			return
		}
	}
}
