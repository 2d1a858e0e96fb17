package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-sod/cpi/internal/database"
	"github.com/go-sod/cpi/internal/observation/model"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := database.NewFromEnv(context.Background(), &database.Config{
		FileName: filepath.Join(t.TempDir(), "obs.db"),
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close(context.Background())
	})
	return New(db)
}

func newObservation(pred float64, createdAt time.Time) model.Observation {
	return model.Observation{
		ID:        uuid.New(),
		Vec:       []float64{pred, pred * 2},
		Pred:      pred,
		Lower:     pred - 1,
		Upper:     pred + 1,
		Status:    model.StatusPending,
		CreatedAt: createdAt,
	}
}

func TestEncodeDecode(t *testing.T) {
	now := time.Now()
	obs := newObservation(3, now)
	obs.Var, obs.HasVar = 0.25, true
	obs.Observe(3.5, now.Add(time.Minute))

	data, err := Encode(obs)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	require.Equal(t, obs.ID, got.ID)
	require.Equal(t, obs.Vec, got.Vec)
	require.Equal(t, obs.Var, got.Var)
	require.True(t, got.HasVar)
	require.True(t, got.IsObserved())
	require.Equal(t, 3.5, got.Value)
	require.True(t, obs.CreatedAt.Equal(got.CreatedAt))
	require.True(t, obs.ObservedAt.Equal(got.ObservedAt))

	pending := newObservation(1, now)
	data, err = Encode(pending)
	require.NoError(t, err)
	got, err = Decode(data)
	require.NoError(t, err)
	require.True(t, got.ObservedAt.IsZero())

	if _, err := Decode([]byte{1, 2}); err == nil {
		t.Errorf("calling Decode on a truncated record, an error is expected")
	}
}

func TestDB_Lifecycle(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now()

	n, err := db.Count()
	require.NoError(t, err)
	require.Equal(t, 0, n)
	all, err := db.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, all)

	batch := []model.Observation{newObservation(1, now), newObservation(2, now), newObservation(3, now)}
	require.NoError(t, db.AppendMany(ctx, batch))
	n, err = db.Count()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	batch[1].Observe(2.5, now)
	require.NoError(t, db.Store(ctx, batch[1]))
	n, _ = db.Count()
	require.Equal(t, 3, n)

	observed, err := db.FindAll(ctx, func(obs model.Observation) bool {
		return obs.IsObserved()
	})
	require.NoError(t, err)
	require.Len(t, observed, 1)
	require.Equal(t, batch[1].ID, observed[0].ID)

	got, ok, err := db.Find(ctx, batch[2].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3.0, got.Pred)

	_, ok, err = db.Find(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.DeleteMany(ctx, batch[:2]))
	require.NoError(t, db.Delete(ctx, batch[2]))
	n, _ = db.Count()
	require.Equal(t, 0, n)
}
