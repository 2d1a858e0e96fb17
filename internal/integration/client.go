// Package integration is a client of the cpi-srv HTTP API.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/go-sod/cpi/internal/buildinfo"
)

type prefixRoundTripper struct {
	addr string
	rt   http.RoundTripper
}

func (p *prefixRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	u := r.URL
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if u.Host == "" {
		u.Host = p.addr
	}

	return p.rt.RoundTrip(r)
}

// NewClient returns a client sending every request to addr.
func NewClient(addr string) *Client {
	return &Client{client: &http.Client{Transport: &prefixRoundTripper{addr: addr, rt: http.DefaultTransport}}}
}

type Client struct {
	client *http.Client
}

type Point struct {
	Vec   []float64   `json:"vector"`
	Extra interface{} `json:"extra,omitempty"`
}

type Interval struct {
	ID    string      `json:"id"`
	Vec   []float64   `json:"vector"`
	Pred  float64     `json:"pred"`
	Lower float64     `json:"lower"`
	Upper float64     `json:"upper"`
	Var   *float64    `json:"var,omitempty"`
	Extra interface{} `json:"extra,omitempty"`
}

type Truth struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

// StatusError is returned for a response outside 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("unable marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.Info.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error with sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Predict requests one interval per point, in order.
func (c *Client) Predict(ctx context.Context, points ...Point) ([]Interval, error) {
	var resp struct {
		Data []Interval `json:"data"`
	}
	if err := c.post(ctx, "/predict", struct {
		Data []Point `json:"data"`
	}{Data: points}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Collect sends ground truth and returns the number of accepted values.
func (c *Client) Collect(ctx context.Context, truth ...Truth) (int, error) {
	var resp struct {
		Accepted int `json:"accepted"`
	}
	if err := c.post(ctx, "/collect", struct {
		Data []Truth `json:"data"`
	}{Data: truth}, &resp); err != nil {
		return 0, err
	}
	return resp.Accepted, nil
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("create new request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}
