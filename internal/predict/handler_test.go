package predict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/observation/model"
)

type fakePredictor struct {
	calls int64
	err   error
}

func (f *fakePredictor) Predict(_ context.Context, vecs [][]float64) ([]model.Observation, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Observation, len(vecs))
	for i, vec := range vecs {
		out[i] = model.Observation{
			ID:        uuid.New(),
			Vec:       vec,
			Pred:      vec[0],
			Lower:     vec[0] - 1,
			Upper:     vec[0] + 1,
			CreatedAt: time.Now(),
		}
	}
	return out, nil
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		err            error
		expectedStatus int
	}{
		{name: "method_not_allowed", method: http.MethodGet, contentType: "application/json", expectedStatus: http.StatusMethodNotAllowed},
		{name: "unsupported_media", method: http.MethodPost, contentType: "text/plain", body: `{}`, expectedStatus: http.StatusUnsupportedMediaType},
		{name: "malformed", method: http.MethodPost, contentType: "application/json", body: `{"data": [`, expectedStatus: http.StatusBadRequest},
		{name: "unknown_field", method: http.MethodPost, contentType: "application/json", body: `{"entity": "x"}`, expectedStatus: http.StatusBadRequest},
		{name: "empty", method: http.MethodPost, contentType: "application/json", body: `{"data": []}`, expectedStatus: http.StatusBadRequest},
		{name: "too_many", method: http.MethodPost, contentType: "application/json", body: `{"data": [{"vector": [1]}, {"vector": [2]}, {"vector": [3]}, {"vector": [4]}]}`, expectedStatus: http.StatusBadRequest},
		{name: "shutting_down", method: http.MethodPost, contentType: "application/json", body: `{"data": [{"vector": [1]}]}`, err: dispatcher.ErrShuttingDown, expectedStatus: http.StatusServiceUnavailable},
		{name: "predict_error", method: http.MethodPost, contentType: "application/json", body: `{"data": [{"vector": [1]}]}`, err: errors.New("dimension mismatch"), expectedStatus: http.StatusBadRequest},
		{name: "ok", method: http.MethodPost, contentType: "application/json; charset=utf-8", body: `{"data": [{"vector": [1]}]}`, expectedStatus: http.StatusOK},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			h, err := NewHandler(&Config{RequestTimeout: time.Second, MaxDataItemsLen: 3, ChunkSize: 2}, &fakePredictor{err: test.err})
			require.NoError(t, err)
			r := httptest.NewRequest(test.method, "/predict", strings.NewReader(test.body))
			r.Header.Set("Content-Type", test.contentType)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != test.expectedStatus {
				t.Errorf("calling ServeHTTP, status got: %v, expected: %v", w.Code, test.expectedStatus)
			}
		})
	}
}

func TestHandler_ChunksKeepOrder(t *testing.T) {
	f := &fakePredictor{}
	h, err := NewHandler(&Config{RequestTimeout: time.Second, MaxDataItemsLen: 100, ChunkSize: 2}, f)
	require.NoError(t, err)

	body := `{"data": [{"vector": [1], "extra": "a"}, {"vector": [2]}, {"vector": [3]}, {"vector": [4]}, {"vector": [5]}]}`
	r := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 5)
	for i, item := range resp.Data {
		if item.Vec[0] != float64(i+1) {
			t.Errorf("calling ServeHTTP, item %d vector got: %v, expected: %v", i, item.Vec[0], i+1)
		}
		require.Equal(t, item.Pred-1, item.Lower)
		_, err := uuid.Parse(item.ID)
		require.NoError(t, err)
		require.Nil(t, item.Var)
	}
	require.Equal(t, "a", resp.Data[0].Extra)
	require.Equal(t, int64(3), atomic.LoadInt64(&f.calls))
}

func TestNewHandler(t *testing.T) {
	if _, err := NewHandler(&Config{}, nil); err == nil {
		t.Errorf("calling NewHandler without a predictor, an error is expected")
	}
}
