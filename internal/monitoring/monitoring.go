// Package monitoring exposes service metrics through opencensus views and a
// prometheus scrape endpoint.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const Namespace = "cpi"

var KeyMethod = tag.MustNewKey("method")

var (
	MPredictedPoints = stats.Int64("predicted_points", "Number of points an interval was served for", stats.UnitDimensionless)
	MObservedPoints  = stats.Int64("observed_points", "Number of ground truth values collected", stats.UnitDimensionless)
	MCoveredPoints   = stats.Int64("covered_points", "Number of ground truth values inside their interval", stats.UnitDimensionless)
	MIntervalWidth   = stats.Float64("interval_width", "Width of served intervals", stats.UnitDimensionless)
	MPredictLatency  = stats.Float64("predict_latency", "Latency of interval prediction", stats.UnitMilliseconds)
	MCoverage        = stats.Float64("rolling_coverage", "Share of recent observations inside their interval", stats.UnitDimensionless)
	MAlerts          = stats.Int64("alerts", "Number of coverage alerts raised", stats.UnitDimensionless)
)

var Views = []*view.View{
	{
		Name:        "predicted_points_total",
		Measure:     MPredictedPoints,
		Description: MPredictedPoints.Description(),
		TagKeys:     []tag.Key{KeyMethod},
		Aggregation: view.Sum(),
	},
	{
		Name:        "observed_points_total",
		Measure:     MObservedPoints,
		Description: MObservedPoints.Description(),
		TagKeys:     []tag.Key{KeyMethod},
		Aggregation: view.Sum(),
	},
	{
		Name:        "covered_points_total",
		Measure:     MCoveredPoints,
		Description: MCoveredPoints.Description(),
		TagKeys:     []tag.Key{KeyMethod},
		Aggregation: view.Sum(),
	},
	{
		Name:        "interval_width",
		Measure:     MIntervalWidth,
		Description: MIntervalWidth.Description(),
		TagKeys:     []tag.Key{KeyMethod},
		Aggregation: view.Distribution(0.01, 0.1, 0.5, 1, 2, 5, 10, 50, 100, 1000),
	},
	{
		Name:        "predict_latency_ms",
		Measure:     MPredictLatency,
		Description: MPredictLatency.Description(),
		TagKeys:     []tag.Key{KeyMethod},
		Aggregation: view.Distribution(0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000),
	},
	{
		Name:        "rolling_coverage",
		Measure:     MCoverage,
		Description: MCoverage.Description(),
		TagKeys:     []tag.Key{KeyMethod},
		Aggregation: view.LastValue(),
	},
	{
		Name:        "alerts_total",
		Measure:     MAlerts,
		Description: MAlerts.Description(),
		TagKeys:     []tag.Key{KeyMethod},
		Aggregation: view.Count(),
	},
}

// Register registers the service views. Registering them again is a no-op.
func Register() error {
	if err := view.Register(Views...); err != nil {
		return fmt.Errorf("register views: %w", err)
	}
	return nil
}

// NewHandler registers a prometheus exporter for the views and returns its
// scrape handler.
func NewHandler() (http.Handler, error) {
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: Namespace})
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	view.RegisterExporter(exporter)
	return exporter, nil
}

func withMethod(ctx context.Context, method string) context.Context {
	tagged, err := tag.New(ctx, tag.Upsert(KeyMethod, method))
	if err != nil {
		return ctx
	}
	return tagged
}

// RecordPredict records a served batch of intervals.
func RecordPredict(ctx context.Context, method string, lower, upper []float64, elapsed time.Duration) {
	ctx = withMethod(ctx, method)
	ms := make([]stats.Measurement, 0, len(lower)+2)
	ms = append(ms,
		MPredictedPoints.M(int64(len(lower))),
		MPredictLatency.M(float64(elapsed)/float64(time.Millisecond)),
	)
	for i := range lower {
		ms = append(ms, MIntervalWidth.M(upper[i]-lower[i]))
	}
	stats.Record(ctx, ms...)
}

// RecordObserved records collected ground truth and the current rolling
// coverage.
func RecordObserved(ctx context.Context, method string, observed, covered int, coverage float64) {
	stats.Record(withMethod(ctx, method),
		MObservedPoints.M(int64(observed)),
		MCoveredPoints.M(int64(covered)),
		MCoverage.M(coverage),
	)
}

func RecordAlert(ctx context.Context, method string) {
	stats.Record(withMethod(ctx, method), MAlerts.M(1))
}
