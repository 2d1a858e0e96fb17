package setup_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cpi "github.com/go-sod/cpi/internal/config"
	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/setup"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("x,y\n")
	for i := 0; i < 80; i++ {
		x := float64(i) / 4
		noise := float64(i%7)/7 - 0.5
		fmt.Fprintf(&b, "%v,%v\n", x, 2*x+1+noise)
	}
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))
	return path
}

func TestSetup(t *testing.T) {
	t.Setenv("CPI_DATASET_PATH", writeDataset(t))
	t.Setenv("CPI_DB_FILE", filepath.Join(t.TempDir(), "cpi.db"))
	t.Setenv("CPI_METHOD", "SPLIT")
	t.Setenv("CPI_ALPHA", "0.2")
	t.Setenv("CPI_REDIS_ADDR", "")
	t.Setenv("CPI_ALERT_TARGETS", `[{"url": "http://127.0.0.1:1/alerts"}]`)

	ctx := context.Background()
	config := cpi.Config{}
	env, err := setup.Setup(ctx, &config)
	require.NoError(t, err)
	defer env.Close(ctx)

	require.Equal(t, 0.2, config.Interval.Alpha)
	require.Len(t, config.Alert.Targets, 1)
	require.NotNil(t, env.Database())
	require.NotNil(t, env.Cache())

	shutdownCh := make(chan error, 1+dispatcher.ShutdownReceivers)
	notifier, err := env.ProvideNotifier()(shutdownCh)
	require.NoError(t, err)
	require.NoError(t, notifier.Run(ctx))
	defer notifier.Stop()

	m, err := env.ProvideDispatcher()(notifier, shutdownCh)
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx))

	list, err := m.Predict(ctx, [][]float64{{5}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	if !(list[0].Lower < 11 && 11 < list[0].Upper) {
		t.Errorf("calling Predict, interval got: [%v, %v], expected to contain: %v", list[0].Lower, list[0].Upper, 11)
	}

	m.Stop()
	select {
	case err := <-shutdownCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("the dispatcher did not shut down")
	}
}

func TestSetup_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "no_dataset", env: map[string]string{"CPI_DATASET_PATH": ""}},
		{name: "unknown_method", env: map[string]string{"CPI_METHOD": "BAYES"}},
		{name: "unknown_regressor", env: map[string]string{"CPI_REGRESSOR": "TREE"}},
		{name: "bad_alpha", env: map[string]string{"CPI_ALPHA": "1.5"}},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("CPI_DATASET_PATH", writeDataset(t))
			t.Setenv("CPI_DB_FILE", filepath.Join(t.TempDir(), "cpi.db"))
			t.Setenv("CPI_REDIS_ADDR", "")
			for k, v := range test.env {
				t.Setenv(k, v)
			}
			config := cpi.Config{}
			env, err := setup.Setup(context.Background(), &config)
			if err == nil {
				_ = env.Close(context.Background())
				t.Errorf("calling Setup, an error is expected")
			}
		})
	}
}
