package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeErr(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{Offset: 3}
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "syntax", err: syntaxErr, expected: http.StatusBadRequest},
		{name: "unexpected_eof", err: io.ErrUnexpectedEOF, expected: http.StatusBadRequest},
		{name: "empty", err: io.EOF, expected: http.StatusBadRequest},
		{name: "unknown_field", err: errors.New(`json: unknown field "x"`), expected: http.StatusBadRequest},
		{name: "too_large", err: errors.New("http: request body too large"), expected: http.StatusRequestEntityTooLarge},
		{name: "other", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			DecodeErr(context.Background(), w, test.err)
			if w.Code != test.expected {
				t.Errorf("calling DecodeErr, status got: %v, expected: %v", w.Code, test.expected)
			}
		})
	}
}

func TestCheckJSONPost(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		ok          bool
		status      int
	}{
		{name: "ok", method: http.MethodPost, contentType: "application/json; charset=utf-8", ok: true, status: http.StatusOK},
		{name: "method", method: http.MethodGet, contentType: "application/json", status: http.StatusMethodNotAllowed},
		{name: "media", method: http.MethodPost, contentType: "text/plain", status: http.StatusUnsupportedMediaType},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(test.method, "/", strings.NewReader("{}"))
			r.Header.Set("Content-Type", test.contentType)
			w := httptest.NewRecorder()
			if got := CheckJSONPost(context.Background(), w, r); got != test.ok {
				t.Errorf("calling CheckJSONPost, got: %v, expected: %v", got, test.ok)
			}
			if w.Code != test.status {
				t.Errorf("calling CheckJSONPost, status got: %v, expected: %v", w.Code, test.status)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	var auth, ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		cfg       HTTPClientConfig
		header    string
		auth      string
		basicAuth bool
	}{
		{name: "bearer", cfg: HTTPClientConfig{BearerToken: "token"}, auth: "Bearer token"},
		{name: "basic", cfg: HTTPClientConfig{BasicAuth: &BasicAuth{Username: "u", Password: "p "}}, basicAuth: true},
		{name: "preset_header", cfg: HTTPClientConfig{BearerToken: "token"}, header: "Bearer other", auth: "Bearer other"},
		{name: "anonymous", cfg: HTTPClientConfig{}},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			client, err := NewClient(test.cfg, WithUserAgent("cpi/test"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if test.header != "" {
				req.Header.Set("Authorization", test.header)
			}
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			resp.Body.Close()

			if test.basicAuth {
				if !strings.HasPrefix(auth, "Basic ") {
					t.Errorf("calling NewClient with basic auth, header got: %v", auth)
				}
			} else if auth != test.auth {
				t.Errorf("calling NewClient, authorization got: %v, expected: %v", auth, test.auth)
			}
			if ua != "cpi/test" {
				t.Errorf("calling NewClient, user agent got: %v, expected: %v", ua, "cpi/test")
			}
			if test.header == "" && req.Header.Get("Authorization") != "" {
				t.Errorf("calling NewClient, the caller's request was modified")
			}
		})
	}

	_, err := NewClient(HTTPClientConfig{BearerToken: "t", BasicAuth: &BasicAuth{Username: "u"}})
	if err == nil {
		t.Errorf("calling NewClient with two auth methods, an error is expected")
	}
}
