package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/observation/model"
)

type dbSchedulerConfig struct {
	deps           pullDependencies
	maxItemsStored int
	maxStorageTime time.Duration
	rebuildDBTime  time.Duration
	// onDelete is called with every removed batch.
	onDelete func([]model.Observation)
}

func newDBScheduler(config dbSchedulerConfig) *dbScheduler {
	return &dbScheduler{opts: config}
}

// dbScheduler keeps the observation store bounded by age and by the number
// of observed records.
type dbScheduler struct {
	opts dbSchedulerConfig
}

func (s *dbScheduler) delete(ctx context.Context, list []model.Observation) error {
	if len(list) == 0 {
		return nil
	}
	if err := s.opts.deps.deleteObservations(ctx, list); err != nil {
		return err
	}
	if s.opts.onDelete != nil {
		s.opts.onDelete(list)
	}
	return nil
}

// processOutdated drops records older than the storage time. Pending
// records age from their creation, observed ones from their ground truth.
func (s *dbScheduler) processOutdated(ctx context.Context, now time.Time) error {
	list, err := s.opts.deps.fetchObservations(ctx, func(obs model.Observation) bool {
		at := obs.CreatedAt
		if obs.IsObserved() {
			at = obs.ObservedAt
		}
		return now.Sub(at) > s.opts.maxStorageTime
	})
	if err != nil {
		return fmt.Errorf("unable find outdated observations: %w", err)
	}
	if err := s.delete(ctx, list); err != nil {
		return fmt.Errorf("unable delete outdated observations: %w", err)
	}
	return nil
}

// processOverSize drops the oldest observed records above the limit.
func (s *dbScheduler) processOverSize(ctx context.Context) error {
	list, err := s.opts.deps.fetchObservations(ctx, func(obs model.Observation) bool {
		return obs.IsObserved()
	})
	if err != nil {
		return fmt.Errorf("unable find observed records: %w", err)
	}
	if len(list) <= s.opts.maxItemsStored {
		return nil
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ObservedAt.Before(list[j].ObservedAt)
	})

	if err := s.delete(ctx, list[:len(list)-s.opts.maxItemsStored]); err != nil {
		return fmt.Errorf("unable delete oversize observations: %w", err)
	}
	return nil
}

func (s *dbScheduler) rebuild(ctx context.Context) {
	logger := logging.FromContext(ctx)
	if s.opts.maxStorageTime > 0 {
		if err := s.processOutdated(ctx, time.Now()); err != nil {
			logger.Errorf("unable db rebuild outdated: %v", err)
		}
	}
	if s.opts.maxItemsStored > 0 {
		if err := s.processOverSize(ctx); err != nil {
			logger.Errorf("unable db rebuild size: %v", err)
		}
	}
}

func (s *dbScheduler) schedule(ctx context.Context) {
	if s.opts.rebuildDBTime <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.rebuildDBTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.rebuild(ctx)
		case <-ctx.Done():
			return
		}
	}
}
