package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promNamePrefix namespaces every metric this package registers so it
// cannot collide with metrics a host process registers itself.
const promNamePrefix = "triestore_"

type promMetrics struct {
	mu            sync.Mutex
	counters      map[string]prometheus.Counter
	counterVecs   map[string]*prometheus.CounterVec
	gauges        map[string]prometheus.Gauge
	gaugeVecs     map[string]*prometheus.GaugeVec
	histograms    map[string]prometheus.Histogram
	histogramVecs map[string]*prometheus.HistogramVec
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		counters:      make(map[string]prometheus.Counter),
		counterVecs:   make(map[string]*prometheus.CounterVec),
		gauges:        make(map[string]prometheus.Gauge),
		gaugeVecs:     make(map[string]*prometheus.GaugeVec),
		histograms:    make(map[string]prometheus.Histogram),
		histogramVecs: make(map[string]*prometheus.HistogramVec),
	}
}

func withDefaultBuckets(buckets []float64) []float64 {
	if buckets == nil {
		return prometheus.DefBuckets
	}
	return buckets
}

type promCountMeter struct{ c prometheus.Counter }

func (m *promCountMeter) Add(v int64) { m.c.Add(float64(v)) }

type promCountVecMeter struct{ v *prometheus.CounterVec }

func (m *promCountVecMeter) AddWithLabel(v int64, labels map[string]string) {
	m.v.With(prometheus.Labels(labels)).Add(float64(v))
}

type promGaugeMeter struct{ g prometheus.Gauge }

func (m *promGaugeMeter) Add(v int64) { m.g.Add(float64(v)) }

type promGaugeVecMeter struct{ v *prometheus.GaugeVec }

func (m *promGaugeVecMeter) AddWithLabel(v int64, labels map[string]string) {
	m.v.With(prometheus.Labels(labels)).Add(float64(v))
}

type promHistogramMeter struct{ h prometheus.Histogram }

func (m *promHistogramMeter) Observe(v int64) { m.h.Observe(float64(v)) }

type promHistogramVecMeter struct{ v *prometheus.HistogramVec }

func (m *promHistogramVecMeter) ObserveWithLabels(v int64, labels map[string]string) {
	m.v.With(prometheus.Labels(labels)).Observe(float64(v))
}

func (m *promMetrics) Counter(name string) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{Name: promNamePrefix + name})
		prometheus.MustRegister(c)
		m.counters[name] = c
	}
	return &promCountMeter{c: c}
}

func (m *promMetrics) CounterVec(name string, labels []string) CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.counterVecs[name]
	if !ok {
		v = prometheus.NewCounterVec(prometheus.CounterOpts{Name: promNamePrefix + name}, labels)
		prometheus.MustRegister(v)
		m.counterVecs[name] = v
	}
	return &promCountVecMeter{v: v}
}

func (m *promMetrics) Gauge(name string) Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{Name: promNamePrefix + name})
		prometheus.MustRegister(g)
		m.gauges[name] = g
	}
	return &promGaugeMeter{g: g}
}

func (m *promMetrics) GaugeVec(name string, labels []string) GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.gaugeVecs[name]
	if !ok {
		v = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promNamePrefix + name}, labels)
		prometheus.MustRegister(v)
		m.gaugeVecs[name] = v
	}
	return &promGaugeVecMeter{v: v}
}

func (m *promMetrics) Histogram(name string, buckets []float64) Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    promNamePrefix + name,
			Buckets: withDefaultBuckets(buckets),
		})
		prometheus.MustRegister(h)
		m.histograms[name] = h
	}
	return &promHistogramMeter{h: h}
}

func (m *promMetrics) HistogramVec(name string, labels []string, buckets []float64) HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.histogramVecs[name]
	if !ok {
		v = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promNamePrefix + name,
			Buckets: withDefaultBuckets(buckets),
		}, labels)
		prometheus.MustRegister(v)
		m.histogramVecs[name] = v
	}
	return &promHistogramVecMeter{v: v}
}

func (m *promMetrics) HTTPHandler() http.Handler { return promhttp.Handler() }
