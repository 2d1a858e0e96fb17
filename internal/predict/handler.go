package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/httputil"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/internal/observation/model"
)

const maxBodyBytes = 64 * 1024 * 1024

type request struct {
	Data []struct {
		Vec   []float64   `json:"vector"`
		Extra interface{} `json:"extra,omitempty"`
	} `json:"data"`
}

type responseItem struct {
	ID    string      `json:"id"`
	Vec   []float64   `json:"vector"`
	Pred  float64     `json:"pred"`
	Lower float64     `json:"lower"`
	Upper float64     `json:"upper"`
	Var   *float64    `json:"var,omitempty"`
	Extra interface{} `json:"extra,omitempty"`
}

type response struct {
	Data []responseItem `json:"data"`
}

func NewHandler(cfg *Config, predictor dispatcher.Predictor) (http.Handler, error) {
	if predictor == nil {
		return nil, fmt.Errorf("predictor instance is not created")
	}
	return &handler{cfg: cfg, predictor: predictor}, nil
}

type handler struct {
	predictor dispatcher.Predictor
	cfg       *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

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

	vecs := make([][]float64, len(req.Data))
	for i := range req.Data {
		vecs[i] = req.Data[i].Vec
	}

	list, err := h.predict(ctx, vecs)
	switch {
	case errors.Is(err, dispatcher.ErrShuttingDown):
		http.Error(w, `{"error": "service is shutting down"}`, http.StatusServiceUnavailable)
		return
	case err != nil:
		httputil.RespBadRequest(ctx, w, `{"error": "predict processing error, %v"}`, err)
		return
	}

	resp := response{Data: make([]responseItem, len(list))}
	for i, obs := range list {
		resp.Data[i] = responseItem{
			ID:    obs.ID.String(),
			Vec:   obs.Vec,
			Pred:  obs.Pred,
			Lower: obs.Lower,
			Upper: obs.Upper,
			Extra: req.Data[i].Extra,
		}
		if obs.HasVar {
			v := obs.Var
			resp.Data[i].Var = &v
		}
	}
	logging.FromContext(ctx).Debugf("served %d intervals", len(list))
	httputil.RespJSON(ctx, w, http.StatusOK, resp)
}

// predict splits vecs into chunks predicted concurrently and keeps the
// request order in the result.
func (h *handler) predict(ctx context.Context, vecs [][]float64) ([]model.Observation, error) {
	size := h.cfg.ChunkSize
	if size <= 0 {
		size = len(vecs)
	}
	out := make([]model.Observation, len(vecs))
	grp, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(vecs); lo += size {
		lo, hi := lo, lo+size
		if hi > len(vecs) {
			hi = len(vecs)
		}
		grp.Go(func() error {
			list, err := h.predictor.Predict(ctx, vecs[lo:hi])
			if err != nil {
				return err
			}
			copy(out[lo:hi], list)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
