package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-sod/cpi/internal/observation/model"
)

func newBatch(n int) []model.Observation {
	list := make([]model.Observation, n)
	for i := range list {
		list[i] = model.Observation{
			ID:        uuid.New(),
			Vec:       []float64{float64(i)},
			Lower:     float64(i) - 1,
			Upper:     float64(i) + 1,
			CreatedAt: time.Now(),
		}
	}
	return list
}

type appendRecorder struct {
	mtx     sync.Mutex
	batches [][]model.Observation
	err     error
}

func (r *appendRecorder) append(_ context.Context, list []model.Observation) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, append([]model.Observation{}, list...))
	return nil
}

func (r *appendRecorder) total() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestDBTxExecutorFlusher(t *testing.T) {
	rec := &appendRecorder{}
	tx := newDBTxExecutor(dbTxExecutorOptions{
		flushTime: 10 * time.Millisecond,
		deps:      pullDependencies{appendObservations: rec.append},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tx.flusher(ctx)

	tx.write(ctx, newBatch(5)...)
	require.Eventually(t, func() bool { return rec.total() == 5 }, 2*time.Second, 5*time.Millisecond)
	if tx.len() != 0 {
		t.Errorf("calling the flusher method, the length of buffer got: %v, expected: %v", tx.len(), 0)
	}
}

func TestDBTxExecutorWrite(t *testing.T) {
	tests := []struct {
		name          string
		flushSize     int
		items         int
		expectedTotal int
	}{
		{name: "below_flush_size", flushSize: 10, items: 3, expectedTotal: 0},
		{name: "flush_size_reached", flushSize: 3, items: 3, expectedTotal: 3},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			rec := &appendRecorder{}
			tx := newDBTxExecutor(dbTxExecutorOptions{
				flushSize: test.flushSize,
				flushTime: time.Hour,
				deps:      pullDependencies{appendObservations: rec.append},
			})
			tx.write(context.Background(), newBatch(test.items)...)
			if test.expectedTotal == 0 {
				time.Sleep(20 * time.Millisecond)
				require.Equal(t, 0, rec.total())
				require.Equal(t, test.items, tx.len())
				return
			}
			require.Eventually(t, func() bool { return rec.total() == test.expectedTotal }, 2*time.Second, 5*time.Millisecond)
		})
	}
}

func TestDBTxExecutorShutdown(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedBufLen int
	}{
		{name: "positive_shutdown", expectedBufLen: 0},
		{name: "negative_shutdown", err: errors.New("test error"), expectedBufLen: 4},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			rec := &appendRecorder{err: test.err}
			tx := newDBTxExecutor(dbTxExecutorOptions{
				flushTime: time.Hour,
				deps:      pullDependencies{appendObservations: rec.append},
			})
			tx.write(context.Background(), newBatch(4)...)

			err := tx.shutdown()
			if !errors.Is(err, test.err) {
				t.Errorf("calling the shutdown method, got: %v, expected: %v", err, test.err)
			}
			if tx.len() != test.expectedBufLen {
				t.Errorf("calling the shutdown method, the length of buffer got: %v, expected: %v", tx.len(), test.expectedBufLen)
			}
		})
	}
}

func TestDBTxExecutorLookup(t *testing.T) {
	rec := &appendRecorder{}
	tx := newDBTxExecutor(dbTxExecutorOptions{
		flushTime: time.Hour,
		deps:      pullDependencies{appendObservations: rec.append},
	})
	list := newBatch(2)
	tx.write(context.Background(), list...)

	observed := list[0]
	observed.Observe(3, time.Now())
	tx.write(context.Background(), observed)

	got, ok := tx.lookup(list[0].ID)
	if !ok || !got.IsObserved() {
		t.Errorf("calling the lookup method, got: %v %v, expected the newest write", got, ok)
	}
	if _, ok := tx.lookup(uuid.New()); ok {
		t.Errorf("calling the lookup method with an unknown id, got: %v, expected: %v", ok, false)
	}

	require.NoError(t, tx.shutdown())
	if _, ok := tx.lookup(list[0].ID); ok {
		t.Errorf("calling the lookup method after a flush, got: %v, expected: %v", ok, false)
	}
}
