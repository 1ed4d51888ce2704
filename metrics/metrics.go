// Package metrics implements the Telemetry component of SPEC_FULL.md
// §4.K: counters, gauges and histograms, used for commit/revert/merge
// telemetry, switchable between a no-op sink and a Prometheus-backed
// registry.
//
// It is grounded on the teacher's own metrics package: a package-level
// meterSet swapped out by InitializePrometheusMetrics, plus lazy-load
// thunks for metrics declared as package vars before the backend is
// chosen.
package metrics

import (
	"net/http"
	"sync"
)

// Counter only ever increases.
type Counter interface{ Add(int64) }

// CounterVec is a Counter partitioned by label values.
type CounterVec interface{ AddWithLabel(int64, map[string]string) }

// Gauge can move in either direction; Add is relative to its current value.
type Gauge interface{ Add(int64) }

// GaugeVec is a Gauge partitioned by label values.
type GaugeVec interface{ AddWithLabel(int64, map[string]string) }

// Histogram records a distribution of observed values.
type Histogram interface{ Observe(int64) }

// HistogramVec is a Histogram partitioned by label values.
type HistogramVec interface{ ObserveWithLabels(int64, map[string]string) }

type meterSet interface {
	Counter(name string) Counter
	CounterVec(name string, labels []string) CounterVec
	Gauge(name string) Gauge
	GaugeVec(name string, labels []string) GaugeVec
	Histogram(name string, buckets []float64) Histogram
	HistogramVec(name string, labels []string, buckets []float64) HistogramVec
	HTTPHandler() http.Handler
}

var (
	mu      sync.RWMutex
	metrics meterSet = defaultNoopMetrics()
)

func current() meterSet {
	mu.RLock()
	defer mu.RUnlock()
	return metrics
}

// InitializePrometheusMetrics switches the active backend to one
// registering every metric against prometheus.DefaultRegisterer. Safe
// to call once at process start; metric handles resolved before this
// call (other than through the LazyLoad* thunks) keep talking to the
// no-op sink they were bound to.
func InitializePrometheusMetrics() {
	mu.Lock()
	metrics = newPromMetrics()
	mu.Unlock()
}

func Counter(name string) Counter                        { return current().Counter(name) }
func CounterVec(name string, labels []string) CounterVec { return current().CounterVec(name, labels) }
func Gauge(name string) Gauge                             { return current().Gauge(name) }
func GaugeVec(name string, labels []string) GaugeVec      { return current().GaugeVec(name, labels) }
func Histogram(name string, buckets []float64) Histogram {
	return current().Histogram(name, buckets)
}
func HistogramVec(name string, labels []string, buckets []float64) HistogramVec {
	return current().HistogramVec(name, labels, buckets)
}

// HTTPHandler serves the active backend's scrape endpoint. The no-op
// backend answers every request 404, so mounting it unconditionally is
// safe before InitializePrometheusMetrics is ever called.
func HTTPHandler() http.Handler { return current().HTTPHandler() }

// LazyLoadCounter defers the Counter lookup to first call, for metrics
// declared as package-level vars ahead of InitializePrometheusMetrics.
func LazyLoadCounter(name string) func() Counter {
	return func() Counter { return Counter(name) }
}

func LazyLoadCounterVec(name string, labels []string) func() CounterVec {
	return func() CounterVec { return CounterVec(name, labels) }
}

func LazyLoadGauge(name string) func() Gauge {
	return func() Gauge { return Gauge(name) }
}

func LazyLoadGaugeVec(name string, labels []string) func() GaugeVec {
	return func() GaugeVec { return GaugeVec(name, labels) }
}

func LazyLoadHistogram(name string, buckets []float64) func() Histogram {
	return func() Histogram { return Histogram(name, buckets) }
}

func LazyLoadHistogramVec(name string, labels []string, buckets []float64) func() HistogramVec {
	return func() HistogramVec { return HistogramVec(name, labels, buckets) }
}
