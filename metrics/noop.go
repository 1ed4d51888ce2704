package metrics

import "net/http"

// noopMeters implements every metric interface as a discard, so a
// single shared value can stand in for whichever handle type a caller
// asked for before a real backend is installed.
type noopMeters struct{}

func (*noopMeters) Add(int64)                               {}
func (*noopMeters) AddWithLabel(int64, map[string]string)   {}
func (*noopMeters) Observe(int64)                            {}
func (*noopMeters) ObserveWithLabels(int64, map[string]string) {}

var sharedNoop = &noopMeters{}

type noopMetrics struct{}

func defaultNoopMetrics() *noopMetrics { return &noopMetrics{} }

func (*noopMetrics) Counter(string) Counter                              { return sharedNoop }
func (*noopMetrics) CounterVec(string, []string) CounterVec              { return sharedNoop }
func (*noopMetrics) Gauge(string) Gauge                                  { return sharedNoop }
func (*noopMetrics) GaugeVec(string, []string) GaugeVec                  { return sharedNoop }
func (*noopMetrics) Histogram(string, []float64) Histogram               { return sharedNoop }
func (*noopMetrics) HistogramVec(string, []string, []float64) HistogramVec { return sharedNoop }

// HTTPHandler answers every request 404: there is nothing to scrape
// until a real backend is installed.
func (*noopMetrics) HTTPHandler() http.Handler { return http.HandlerFunc(http.NotFound) }
