package alert

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"sync"
	"time"

	alertDb "github.com/go-sod/cpi/internal/alert/database"
	"github.com/go-sod/cpi/internal/alert/model"
	"github.com/go-sod/cpi/internal/buildinfo"
	"github.com/go-sod/cpi/internal/database"
	"github.com/go-sod/cpi/internal/httputil"
	"github.com/go-sod/cpi/internal/logging"
	"github.com/go-sod/cpi/pkg/rworker"
)

type ProvideFn = func(chan<- error) (Manager, error)

type Options struct {
	maxConcurrentRequest int
	requestTimeout       time.Duration
	interval             time.Duration
	targets              Targets
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
		o.opts.targets = targets
	}
}

type request struct {
	Service string        `json:"service"`
	Alerts  []model.Alert `json:"alerts"`
}

func New(db *database.DB, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	if db == nil {
		return nil, fmt.Errorf("alert: database is required")
	}
	m := &manager{
		alertDb:    alertDb.New(db),
		shutdownCh: shutdownCh,
		clients:    map[string]*http.Client{},
		opts: Options{
			maxConcurrentRequest: 16,
			requestTimeout:       10 * time.Second,
			interval:             5 * time.Second,
		},
	}
	for _, f := range opts {
		f(m)
	}
	for _, target := range m.opts.targets {
		if _, err := url.Parse(target.URL); err != nil {
			return nil, fmt.Errorf("alert target %q: %w", target.URL, err)
		}
		if _, ok := m.clients[target.URL]; !ok {
			client, err := httputil.NewClient(
				target.HTTPConfig,
				httputil.WithUserAgent(buildinfo.Info.UserAgent()),
				httputil.WithResponseTimeout(m.opts.requestTimeout),
			)
			if err != nil {
				return nil, fmt.Errorf("unable create client for target %s: %w", target.URL, err)
			}
			m.clients[target.URL] = client
		}
	}
	return m, nil
}

type Notifier interface {
	Notify(alerts ...model.Alert)
}

type Manager interface {
	Notifier
	Run(context.Context) error
	Stop()
}

// manager delivers alerts to every target on a fixed interval. Alerts stay
// in the database until every target accepted them.
type manager struct {
	mtx        sync.Mutex
	opts       Options
	alertDb    *alertDb.DB
	shutdownCh chan<- error
	clients    map[string]*http.Client
	pending    []model.Alert
	cancel     func()
}

func (m *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	if err := m.initialize(ctx); err != nil {
		cancel()
		return fmt.Errorf("can not start alert manager: %w", err)
	}
	go m.notifier(ctx)
	return nil
}

func (m *manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *manager) Notify(alerts ...model.Alert) {
	m.mtx.Lock()
	m.pending = append(m.pending, alerts...)
	m.mtx.Unlock()
}

func (m *manager) initialize(ctx context.Context) error {
	alerts, err := m.alertDb.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("fetching stored alerts: %w", err)
	}
	if len(alerts) > 0 {
		logging.FromContext(ctx).Infof("resending %d stored alerts", len(alerts))
	}
	m.Notify(alerts...)
	return nil
}

func (m *manager) shutdown() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if err := m.alertDb.StoreMany(context.Background(), m.pending); err != nil {
		return fmt.Errorf("alert shutdown: unable store alerts: %w", err)
	}
	return nil
}

func (m *manager) notifier(ctx context.Context) {
	logger := logging.FromContext(ctx)
	defer func() {
		m.shutdownCh <- m.shutdown()
	}()
	ticker := time.NewTicker(m.opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.flush(ctx); err != nil {
				logger.Errorf("alert error: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// flush sends the pending alerts to every target and forgets them once all
// deliveries succeeded.
func (m *manager) flush(ctx context.Context) error {
	m.mtx.Lock()
	batch := append([]model.Alert{}, m.pending...)
	m.mtx.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := m.alertDb.StoreMany(ctx, batch); err != nil {
		return fmt.Errorf("unable store alerts: %w", err)
	}

	pool := rworker.New(ctx, m.opts.maxConcurrentRequest)
	for _, target := range m.opts.targets {
		target := target
		pool.Go(func(ctx context.Context) error {
			if err := m.do(ctx, target, batch); err != nil {
				return fmt.Errorf("alert target %s: %w", target.URL, err)
			}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return err
	}

	if err := m.alertDb.DeleteMany(ctx, batch); err != nil {
		return fmt.Errorf("unable delete delivered alerts: %w", err)
	}
	m.mtx.Lock()
	m.pending = m.pending[len(batch):]
	m.mtx.Unlock()
	return nil
}

func (m *manager) do(ctx context.Context, target Target, alerts []model.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.requestTimeout)
	defer cancel()
	body, err := json.Marshal(request{Service: buildinfo.Info.Name(), Alerts: alerts})
	if err != nil {
		return fmt.Errorf("unable encode json data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Accept-Encoding", "gzip")
	client, ok := m.clients[target.URL]
	if !ok {
		return fmt.Errorf("client for target %s not defined", target.URL)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request error: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("unable create gzip.NewReader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	respBody, err := ioutil.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("response was not 2xx, got %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
