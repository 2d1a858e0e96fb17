package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/httputil"
	"github.com/go-sod/cpi/internal/logging"
)

const maxBodyBytes = 64 * 1024 * 1024

type request struct {
	Data []struct {
		ID    string   `json:"id"`
		Value *float64 `json:"value"`
	} `json:"data"`
}

type response struct {
	Accepted int `json:"accepted"`
}

func NewHandler(cfg *Config, collector dispatcher.Collector) (http.Handler, error) {
	if collector == nil {
		return nil, fmt.Errorf("collector instance is not created")
	}
	return &handler{collector: collector, cfg: cfg}, nil
}

type handler struct {
	collector dispatcher.Collector
	cfg       *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	if !httputil.CheckJSONPost(ctx, w, r) {
		return
	}

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(&req); err != nil {
		httputil.DecodeErr(ctx, w, err)
		return
	}

	if len(req.Data) == 0 {
		httputil.RespBadRequest(ctx, w, `{"error": "data must not be empty"}`)
		return
	}
	if h.cfg.MaxDataItemsLen > 0 && len(req.Data) > h.cfg.MaxDataItemsLen {
		httputil.RespBadRequest(ctx, w, `{"error": "data items is too large, max allowed len is %d"}`, h.cfg.MaxDataItemsLen)
		return
	}

	truth := make([]dispatcher.Truth, len(req.Data))
	for i, dat := range req.Data {
		id, err := uuid.Parse(dat.ID)
		if err != nil {
			httputil.RespBadRequest(ctx, w, `{"error": "invalid id at position %d"}`, i)
			return
		}
		if dat.Value == nil {
			httputil.RespBadRequest(ctx, w, `{"error": "value is missing at position %d"}`, i)
			return
		}
		truth[i] = dispatcher.Truth{ID: id, Value: *dat.Value}
	}

	if err := h.collector.Collect(truth...); err != nil {
		if errors.Is(err, dispatcher.ErrShuttingDown) {
			http.Error(w, `{"error": "service is shutting down"}`, http.StatusServiceUnavailable)
			return
		}
		httputil.RespInternalError(ctx, w, `{"error": "collect error, %v"}`, err)
		return
	}

	logger.Debugf("collected %d ground truth values", len(truth))
	httputil.RespJSON(ctx, w, http.StatusAccepted, response{Accepted: len(truth)})
}
