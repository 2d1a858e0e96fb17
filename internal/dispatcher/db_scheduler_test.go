package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	obsDb "github.com/go-sod/cpi/internal/observation/database"
	"github.com/go-sod/cpi/internal/observation/model"
)

type memStore struct {
	list     []model.Observation
	fetchErr error
}

func (s *memStore) fetch(_ context.Context, filter obsDb.FilterFn) ([]model.Observation, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []model.Observation
	for _, obs := range s.list {
		if filter == nil || filter(obs) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (s *memStore) delete(_ context.Context, list []model.Observation) error {
	drop := map[uuid.UUID]struct{}{}
	for _, obs := range list {
		drop[obs.ID] = struct{}{}
	}
	kept := s.list[:0]
	for _, obs := range s.list {
		if _, ok := drop[obs.ID]; !ok {
			kept = append(kept, obs)
		}
	}
	s.list = kept
	return nil
}

func observedAt(value float64, at time.Time) model.Observation {
	obs := model.Observation{ID: uuid.New(), Vec: []float64{value}, CreatedAt: at}
	obs.Observe(value, at)
	return obs
}

func TestProcessOverSize(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name           string
		maxItemsStored int
		items          []model.Observation
		expected       []float64
		expectedErr    error
		fetchErr       error
	}{
		{
			name:           "drops_oldest",
			maxItemsStored: 3,
			items: []model.Observation{
				observedAt(3, now.Add(-3*time.Minute)),
				observedAt(1, now.Add(-5*time.Minute)),
				observedAt(5, now.Add(-1*time.Minute)),
				observedAt(2, now.Add(-4*time.Minute)),
				observedAt(4, now.Add(-2*time.Minute)),
				{ID: uuid.New(), Vec: []float64{0}, CreatedAt: now.Add(-time.Hour)},
			},
			expected: []float64{3, 5, 4, 0},
		},
		{
			name:           "within_limit",
			maxItemsStored: 3,
			items:          []model.Observation{observedAt(1, now), observedAt(2, now)},
			expected:       []float64{1, 2},
		},
		{
			name:           "fetch_error",
			maxItemsStored: 3,
			fetchErr:       errors.New("test error"),
			expectedErr:    errors.New("test error"),
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			store := &memStore{list: test.items, fetchErr: test.fetchErr}
			var deleted int
			scheduler := newDBScheduler(dbSchedulerConfig{
				maxItemsStored: test.maxItemsStored,
				deps: pullDependencies{
					fetchObservations:  store.fetch,
					deleteObservations: store.delete,
				},
				onDelete: func(list []model.Observation) {
					deleted += len(list)
				},
			})
			err := scheduler.processOverSize(context.Background())
			if test.expectedErr != nil {
				if err == nil {
					t.Errorf("calling the processOverSize method, got: %v, expected: %v", err, test.expectedErr)
				}
				return
			}
			require.NoError(t, err)

			var got []float64
			for _, obs := range store.list {
				got = append(got, obs.Vec[0])
			}
			if len(got) != len(test.expected) {
				t.Fatalf("calling the processOverSize method, the length of data got: %v, expected: %v", len(got), len(test.expected))
			}
			require.Equal(t, test.expected, got)
			require.Equal(t, len(test.items)-len(test.expected), deleted)
		})
	}
}

func TestProcessOutdated(t *testing.T) {
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	pendingOld := model.Observation{ID: uuid.New(), Vec: []float64{1}, CreatedAt: old}
	pendingNew := model.Observation{ID: uuid.New(), Vec: []float64{2}, CreatedAt: now}
	observedOld := observedAt(3, old)
	// created long ago but observed recently
	observedLate := model.Observation{ID: uuid.New(), Vec: []float64{4}, CreatedAt: old}
	observedLate.Observe(4, now)

	store := &memStore{list: []model.Observation{pendingOld, pendingNew, observedOld, observedLate}}
	var deleted []model.Observation
	scheduler := newDBScheduler(dbSchedulerConfig{
		maxStorageTime: time.Hour,
		deps: pullDependencies{
			fetchObservations:  store.fetch,
			deleteObservations: store.delete,
		},
		onDelete: func(list []model.Observation) {
			deleted = append(deleted, list...)
		},
	})
	require.NoError(t, scheduler.processOutdated(context.Background(), now))

	require.Len(t, store.list, 2)
	require.Equal(t, pendingNew.ID, store.list[0].ID)
	require.Equal(t, observedLate.ID, store.list[1].ID)
	require.Len(t, deleted, 2)
}
