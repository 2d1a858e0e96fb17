package httputil

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type clientOptions struct {
	keepAlives      bool
	responseTimeout time.Duration
	userAgent       string
}

type ClientOption func(*clientOptions)

// WithKeepAlives keeps connections to the target open between requests.
// Polling targets benefit from it, one-shot webhooks do not.
func WithKeepAlives(keep bool) ClientOption {
	return func(o *clientOptions) {
		o.keepAlives = keep
	}
}

func WithResponseTimeout(t time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.responseTimeout = t
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(o *clientOptions) {
		o.userAgent = ua
	}
}

// NewClient builds a client for one scrape or alert target. Authentication
// and the user agent are set on every request that does not carry them yet.
func NewClient(cfg HTTPClientConfig, opts ...ClientOption) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid http config: %w", err)
	}

	o := clientOptions{responseTimeout: 10 * time.Second}
	for _, f := range opts {
		f(&o)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		DisableKeepAlives:     !o.keepAlives,
		DisableCompression:    true,
		IdleConnTimeout:       5 * time.Minute,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: o.responseTimeout,
	}

	rt := &headerRoundTripper{rt: transport, userAgent: o.userAgent}
	switch {
	case cfg.BearerToken != "":
		rt.authorize = func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
		}
	case cfg.BasicAuth != nil:
		username, password := cfg.BasicAuth.Username, strings.TrimSpace(cfg.BasicAuth.Password)
		rt.authorize = func(req *http.Request) {
			req.SetBasicAuth(username, password)
		}
	}

	return &http.Client{Transport: rt}, nil
}

type headerRoundTripper struct {
	rt        http.RoundTripper
	userAgent string
	authorize func(*http.Request)
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	needAuth := h.authorize != nil && req.Header.Get("Authorization") == ""
	needUA := h.userAgent != "" && req.Header.Get("User-Agent") == ""
	if !needAuth && !needUA {
		return h.rt.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	if needAuth {
		h.authorize(req)
	}
	if needUA {
		req.Header.Set("User-Agent", h.userAgent)
	}
	return h.rt.RoundTrip(req)
}
