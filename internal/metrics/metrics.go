// Package metrics exposes import and parse counters in the Prometheus
// exposition format.
//
// Every Collector owns its registry so that tests and the CLI can create
// independent instances. The zero value is not usable; a nil *Collector is,
// and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "powerlog"

// Collector holds the metrics recorded by the importer.
type Collector struct {
	registry *prometheus.Registry

	linesTotal      prometheus.Counter
	dispatchedTotal prometheus.Counter
	warningsTotal   prometheus.Counter
	matchesTotal    *prometheus.CounterVec
	importErrors    prometheus.Counter
	parseDuration   prometheus.Histogram
	lastImport      prometheus.Gauge
}

// NewCollector creates a collector registered on registry. If registry is nil
// a fresh one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		linesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Total number of log lines read",
		}),
		dispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dispatched_total",
			Help:      "Total number of power log lines handed to a record handler",
		}),
		warningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total number of lines that could not be placed in a match tree",
		}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_imported_total",
			Help:      "Total number of matches written to the store by result",
		}, []string{"result"}),
		importErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_errors_total",
			Help:      "Total number of failed import batches",
		}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one batch of lines",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		lastImport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_import_timestamp_seconds",
			Help:      "Unix time of the last successful import batch",
		}),
	}
	registry.MustRegister(
		c.linesTotal,
		c.dispatchedTotal,
		c.warningsTotal,
		c.matchesTotal,
		c.importErrors,
		c.parseDuration,
		c.lastImport,
	)
	return c
}

// ObserveParse records one parsed batch. The counts are deltas for the batch.
func (c *Collector) ObserveParse(lines, dispatched, warnings int64, d time.Duration) {
	if c == nil {
		return
	}
	c.linesTotal.Add(float64(lines))
	c.dispatchedTotal.Add(float64(dispatched))
	c.warningsTotal.Add(float64(warnings))
	c.parseDuration.Observe(d.Seconds())
}

// RecordImport records the outcome of one persisted batch.
func (c *Collector) RecordImport(inserted, updated, skipped int) {
	if c == nil {
		return
	}
	c.matchesTotal.WithLabelValues("inserted").Add(float64(inserted))
	c.matchesTotal.WithLabelValues("updated").Add(float64(updated))
	c.matchesTotal.WithLabelValues("skipped").Add(float64(skipped))
	c.lastImport.SetToCurrentTime()
}

func (c *Collector) RecordImportError() {
	if c == nil {
		return
	}
	c.importErrors.Inc()
}

// Registry returns the registry the collector's metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
