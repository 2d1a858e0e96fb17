// Package scrape pulls ground truth from remote endpoints and hands it to
// the dispatcher, for deployments where the outcome is not pushed.
package scrape

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-sod/cpi/internal/buildinfo"
	"github.com/go-sod/cpi/internal/dispatcher"
	"github.com/go-sod/cpi/internal/httputil"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/pkg/rworker"
)

// SinceParam is the query parameter carrying the newest observation time
// already received from a target.
const SinceParam = "since"

type response struct {
	Data []struct {
		ID         string    `json:"id"`
		Value      float64   `json:"value"`
		ObservedAt time.Time `json:"observedAt"`
	} `json:"data"`
}

type Manager interface {
	Run(context.Context) error
	Stop()
}

type ProvideFn = func(dispatcher.Collector, chan<- error) (Manager, error)

type Options struct {
	maxConcurrentRequest int
	requestTimeout       time.Duration
	interval             time.Duration
}

type Option func(*manager)

func WithMaxConcurrentRequest(n int) Option {
	return func(o *manager) {
		o.opts.maxConcurrentRequest = n
	}
}

func WithInterval(t time.Duration) Option {
	return func(o *manager) {
		o.opts.interval = t
	}
}

func WithRequestTimeout(t time.Duration) Option {
	return func(o *manager) {
		o.opts.requestTimeout = t
	}
}

func WithTargets(targets Targets) Option {
	return func(o *manager) {
		o.targets = targets
	}
}

func New(collector dispatcher.Collector, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	if collector == nil {
		return nil, fmt.Errorf("collector instance is not defined")
	}
	m := &manager{
		shutdownCh: shutdownCh,
		collector:  collector,
		clients:    map[string]*http.Client{},
		since:      map[string]time.Time{},
		opts: Options{
			maxConcurrentRequest: 16,
			requestTimeout:       10 * time.Second,
			interval:             10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, target := range m.targets {
		if _, err := url.Parse(target.URL); err != nil {
			return nil, fmt.Errorf("scrape target %q: %w", target.URL, err)
		}
		client, err := httputil.NewClient(
			target.HTTPConfig,
			httputil.WithKeepAlives(true),
			httputil.WithUserAgent(buildinfo.Info.UserAgent()),
			httputil.WithResponseTimeout(m.opts.requestTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("unable create client for target %s: %w", target.URL, err)
		}
		m.clients[target.URL] = client
	}
	return m, nil
}

type manager struct {
	mtx        sync.Mutex
	opts       Options
	targets    Targets
	collector  dispatcher.Collector
	clients    map[string]*http.Client
	since      map[string]time.Time
	shutdownCh chan<- error
	cancel     func()
}

func (s *manager) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		defer func() {
			s.shutdownCh <- nil
		}()
		ticker := time.NewTicker(s.opts.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.scrapping(ctx); err != nil {
					logging.FromContext(ctx).Errorf("scrape manager error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *manager) scrape(ctx context.Context, target Target) (response, error) {
	var r response
	ctx, cancel := context.WithTimeout(ctx, s.opts.requestTimeout)
	defer cancel()

	u, err := url.Parse(target.URL)
	if err != nil {
		return r, fmt.Errorf("url parsing error: %w", err)
	}
	s.mtx.Lock()
	since, ok := s.since[target.URL]
	s.mtx.Unlock()
	if ok {
		q := u.Query()
		q.Set(SinceParam, since.Format(time.RFC3339Nano))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return r, fmt.Errorf("creating request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Add("Accept-Encoding", "gzip")
	resp, err := s.clients[target.URL].Do(req)
	if err != nil {
		return r, fmt.Errorf("sending request error: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return r, fmt.Errorf("unable create gzip.NewReader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := ioutil.ReadAll(reader)
	if err != nil {
		return r, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return r, fmt.Errorf("response was not 200 OK: %s", body)
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("decoding response error: %w", err)
	}
	return r, nil
}

// collect forwards one target's ground truth oldest first and remembers the
// newest observation time.
func (s *manager) collect(ctx context.Context, target Target) error {
	resp, err := s.scrape(ctx, target)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", target.URL, err)
	}
	sort.SliceStable(resp.Data, func(i, j int) bool {
		return resp.Data[i].ObservedAt.Before(resp.Data[j].ObservedAt)
	})

	truth := make([]dispatcher.Truth, 0, len(resp.Data))
	var newest time.Time
	for _, dat := range resp.Data {
		id, err := uuid.Parse(dat.ID)
		if err != nil {
			logging.FromContext(ctx).Warnf("scrape %s: skipping invalid id %q", target.URL, dat.ID)
			continue
		}
		truth = append(truth, dispatcher.Truth{ID: id, Value: dat.Value})
		if dat.ObservedAt.After(newest) {
			newest = dat.ObservedAt
		}
	}
	if len(truth) == 0 {
		return nil
	}
	if err := s.collector.Collect(truth...); err != nil {
		return fmt.Errorf("send to collect error: %w", err)
	}
	if !newest.IsZero() {
		s.mtx.Lock()
		s.since[target.URL] = newest
		s.mtx.Unlock()
	}
	return nil
}

// scrapping polls every target. A failing target does not stop the others.
func (s *manager) scrapping(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	pool := rworker.New(ctx, s.opts.maxConcurrentRequest)
	for _, target := range s.targets {
		target := target
		pool.Go(func(ctx context.Context) error {
			if err := s.collect(ctx, target); err != nil {
				logger.Errorf("scrape manager error: %v", err)
			}
			return nil
		})
	}
	return pool.Wait()
}
