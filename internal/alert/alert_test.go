package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	alertDb "github.com/go-sod/cpi/internal/alert/database"
	"github.com/go-sod/cpi/internal/alert/model"
	"github.com/go-sod/cpi/internal/database"
)

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewFromEnv(context.Background(), &database.Config{
		FileName: filepath.Join(t.TempDir(), "alert.db"),
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close(context.Background())
	})
	return db
}

func TestManager_Deliver(t *testing.T) {
	received := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		select {
		case received <- req:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := openDB(t)
	shutdownCh := make(chan error, 1)
	m, err := New(db, shutdownCh,
		WithTargets(Targets{{URL: srv.URL}}),
		WithInterval(20*time.Millisecond),
		WithRequestTimeout(time.Second),
	)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	m.Notify(model.NewAlert("split", 0.7, 0.9, 50))

	select {
	case req := <-received:
		require.Len(t, req.Alerts, 1)
		require.Equal(t, 0.7, req.Alerts[0].Coverage)
		require.Equal(t, "CPI", req.Service)
	case <-time.After(5 * time.Second):
		t.Fatalf("the alert was not delivered")
	}

	m.Stop()
	require.NoError(t, <-shutdownCh)

	stored, err := alertDb.New(db).FindAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestManager_KeepsUndelivered(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := openDB(t)
	shutdownCh := make(chan error, 1)
	m, err := New(db, shutdownCh, WithTargets(Targets{{URL: srv.URL}}), WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	m.Notify(model.NewAlert("cv+", 0.5, 0.9, 10))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	m.Stop()
	require.NoError(t, <-shutdownCh)

	stored, err := alertDb.New(db).FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "cv+", stored[0].Method)

	restarted, err := New(db, shutdownCh, WithInterval(time.Hour))
	require.NoError(t, err)
	require.NoError(t, restarted.Run(context.Background()))
	restarted.mtx.Lock()
	require.Len(t, restarted.pending, 1)
	restarted.mtx.Unlock()
	restarted.Stop()
	require.NoError(t, <-shutdownCh)
}

func TestTargets_Decode(t *testing.T) {
	var ts Targets
	require.NoError(t, ts.Decode(`[{"url": "http://localhost:9000/hook", "httpConfig": {"bearerToken": "x"}}]`))
	require.Len(t, ts, 1)
	require.Equal(t, "x", ts[0].HTTPConfig.BearerToken)
	require.Error(t, ts.Decode(`{`))
}

func TestNew_NoDatabase(t *testing.T) {
	if _, err := New(nil, make(chan error, 1)); err == nil {
		t.Errorf("calling New without a database, an error is expected")
	}
}
