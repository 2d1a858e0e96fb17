package collect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-sod/cpi/internal/dispatcher"
)

type fakeCollector struct {
	truth []dispatcher.Truth
	err   error
}

func (f *fakeCollector) Collect(truth ...dispatcher.Truth) error {
	if f.err != nil {
		return f.err
	}
	f.truth = append(f.truth, truth...)
	return nil
}

func TestHandler(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name           string
		method         string
		body           string
		err            error
		expectedStatus int
		expectedLen    int
	}{
		{name: "method_not_allowed", method: http.MethodPut, body: `{}`, expectedStatus: http.StatusMethodNotAllowed},
		{name: "empty_body", method: http.MethodPost, expectedStatus: http.StatusBadRequest},
		{name: "empty_data", method: http.MethodPost, body: `{"data": []}`, expectedStatus: http.StatusBadRequest},
		{name: "invalid_id", method: http.MethodPost, body: `{"data": [{"id": "42", "value": 1}]}`, expectedStatus: http.StatusBadRequest},
		{name: "missing_value", method: http.MethodPost, body: fmt.Sprintf(`{"data": [{"id": %q}]}`, id), expectedStatus: http.StatusBadRequest},
		{name: "wrong_type", method: http.MethodPost, body: fmt.Sprintf(`{"data": [{"id": %q, "value": "x"}]}`, id), expectedStatus: http.StatusBadRequest},
		{
			name:           "shutting_down",
			method:         http.MethodPost,
			body:           fmt.Sprintf(`{"data": [{"id": %q, "value": 1}]}`, id),
			err:            dispatcher.ErrShuttingDown,
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "accepted",
			method:         http.MethodPost,
			body:           fmt.Sprintf(`{"data": [{"id": %q, "value": 1.5}, {"id": %q, "value": 0}]}`, id, id),
			expectedStatus: http.StatusAccepted,
			expectedLen:    2,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			c := &fakeCollector{err: test.err}
			h, err := NewHandler(&Config{RequestTimeout: time.Second, MaxDataItemsLen: 10}, c)
			require.NoError(t, err)
			r := httptest.NewRequest(test.method, "/collect", strings.NewReader(test.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != test.expectedStatus {
				t.Errorf("calling ServeHTTP, status got: %v, expected: %v", w.Code, test.expectedStatus)
			}
			if len(c.truth) != test.expectedLen {
				t.Errorf("calling ServeHTTP, collected got: %v, expected: %v", len(c.truth), test.expectedLen)
			}
			if test.expectedStatus == http.StatusAccepted {
				var resp response
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				require.Equal(t, 2, resp.Accepted)
				require.Equal(t, id, c.truth[0].ID)
				require.Equal(t, 1.5, c.truth[0].Value)
			}
		})
	}
}
