package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records store activity. A nil *Metrics records nothing.
type Metrics struct {
	fetches       metric.Int64Counter
	fetchDuration metric.Float64Histogram
	sortChanges   metric.Int64Counter
}

// NewMetrics registers the catalog instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.fetches, err = meter.Int64Counter(
		"catalog_fetches_total",
		metric.WithDescription("Catalog fetches by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create catalog_fetches_total counter")
	}

	m.fetchDuration, err = meter.Float64Histogram(
		"catalog_fetch_duration_seconds",
		metric.WithDescription("Catalog fetch duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create catalog_fetch_duration histogram")
	}

	m.sortChanges, err = meter.Int64Counter(
		"catalog_sort_changes_total",
		metric.WithDescription("Sort order changes by order"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create catalog_sort_changes_total counter")
	}

	return m, nil
}

func (m *Metrics) recordFetch(ctx context.Context, status Status, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.fetches.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) recordSort(ctx context.Context, order string) {
	if m == nil {
		return
	}
	m.sortChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("order", order)))
}
