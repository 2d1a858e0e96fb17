package scrape

import (
	"encoding/json"
	"time"

	"github.com/go-sod/cpi/internal/httputil"
)

type Config struct {
	// Without targets ground truth only arrives through /collect.
	Targets              Targets       `envconfig:"CPI_SCRAPE_TARGETS"`
	MaxConcurrentRequest int           `envconfig:"CPI_SCRAPE_MAX_CONCURRENT_REQUEST" default:"16"`
	Interval             time.Duration `envconfig:"CPI_SCRAPE_INTERVAL" default:"10s"`
	RequestTimeout       time.Duration `envconfig:"CPI_SCRAPE_REQUEST_TIMEOUT" default:"10s"`
}

type Targets []Target

// Decode reads the JSON list given in CPI_SCRAPE_TARGETS.
func (ts *Targets) Decode(value string) error {
	var targets []Target
	if err := json.Unmarshal([]byte(value), &targets); err != nil {
		return err
	}
	*ts = targets
	return nil
}

// Target is an endpoint answering GET with ground truth observed after the
// time given in the since query parameter.
type Target struct {
	URL        string                    `json:"url"`
	HTTPConfig httputil.HTTPClientConfig `json:"httpConfig"`
}
