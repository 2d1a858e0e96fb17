package alert

import (
	"encoding/json"
	"time"

	"github.com/go-sod/cpi/internal/httputil"
)

type Config struct {
	AllowAlerts          bool          `envconfig:"CPI_ALLOW_ALERTS" default:"true"`
	Targets              Targets       `envconfig:"CPI_ALERT_TARGETS"`
	Interval             time.Duration `envconfig:"CPI_ALERT_INTERVAL" default:"5s"`
	RequestTimeout       time.Duration `envconfig:"CPI_ALERT_REQUEST_TIMEOUT" default:"10s"`
	MaxConcurrentRequest int           `envconfig:"CPI_ALERT_MAX_CONCURRENT_REQUEST" default:"16"`
}

type Targets []Target

// Decode reads the JSON list given in CPI_ALERT_TARGETS.
func (ts *Targets) Decode(value string) error {
	var targets []Target
	if err := json.Unmarshal([]byte(value), &targets); err != nil {
		return err
	}
	*ts = targets
	return nil
}

type Target struct {
	URL        string                    `json:"url"`
	HTTPConfig httputil.HTTPClientConfig `json:"httpConfig"`
}
