// Package metrics is the observability sidecar: per-stage timings and
// counters exposed in Prometheus format. The pipeline never blocks on or
// depends on any of it; a nil Recorder disables everything.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	validationSeconds *prometheus.HistogramVec
	connectSeconds    *prometheus.HistogramVec
	countSeconds      *prometheus.HistogramVec
	selectSeconds     *prometheus.HistogramVec
	handlerSeconds    *prometheus.HistogramVec

	rowsReturned *prometheus.HistogramVec
	rowsTotal    *prometheus.HistogramVec
	pageSize     *prometheus.HistogramVec

	requestsRejected *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	coldStarts       *prometheus.CounterVec
)

func init() {
	stage := []string{"stage"}
	seconds := func(name, help string) *prometheus.HistogramVec {
		return promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: prometheus.DefBuckets,
		}, stage)
	}
	counts := func(name, help string, buckets []float64) *prometheus.HistogramVec {
		return promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		}, stage)
	}
	counter := func(name, help string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, stage)
	}

	validationSeconds = seconds("trendfinder_validation_seconds", "Time spent validating request parameters")
	connectSeconds = seconds("trendfinder_db_connect_seconds", "Time spent acquiring the store connection")
	countSeconds = seconds("trendfinder_sql_count_seconds", "Count statement execution time")
	selectSeconds = seconds("trendfinder_sql_select_seconds", "Page statement execution time")
	handlerSeconds = seconds("trendfinder_handler_seconds", "Total request handling time")

	rowBuckets := []float64{0, 1, 5, 10, 25, 50, 100, 250, 500}
	rowsReturned = counts("trendfinder_rows_returned", "Rows returned per response", rowBuckets)
	rowsTotal = counts("trendfinder_rows_matched", "Total rows matching the filter", []float64{0, 10, 100, 1000, 10000, 100000})
	pageSize = counts("trendfinder_page_size", "Requested page size", rowBuckets)

	requestsRejected = counter("trendfinder_requests_rejected_total", "Requests rejected by validation")
	errorsTotal = counter("trendfinder_errors_total", "Requests failed after validation")
	coldStarts = counter("trendfinder_cold_starts_total", "First invocation in this process")
}

// Recorder emits measurements for one deployment stage. Nil-safe: every
// method on a nil Recorder is a no-op.
type Recorder struct {
	stage string
	cold  sync.Once
}

// NewRecorder returns a Recorder labelled with the deployment stage, or
// nil when metrics are disabled.
func NewRecorder(enabled bool, stage string) *Recorder {
	if !enabled {
		return nil
	}
	return &Recorder{stage: stage}
}

// MarkColdStart records the first invocation once per process.
func (r *Recorder) MarkColdStart() {
	if r == nil {
		return
	}
	r.cold.Do(func() { coldStarts.WithLabelValues(r.stage).Inc() })
}

func (r *Recorder) observe(h *prometheus.HistogramVec, v float64) {
	if r == nil {
		return
	}
	h.WithLabelValues(r.stage).Observe(v)
}

func (r *Recorder) ObserveValidation(seconds float64) { r.observe(validationSeconds, seconds) }
func (r *Recorder) ObserveConnect(seconds float64)    { r.observe(connectSeconds, seconds) }
func (r *Recorder) ObserveCount(seconds float64)      { r.observe(countSeconds, seconds) }
func (r *Recorder) ObserveSelect(seconds float64)     { r.observe(selectSeconds, seconds) }
func (r *Recorder) ObserveHandler(seconds float64)    { r.observe(handlerSeconds, seconds) }

func (r *Recorder) ObserveRows(returned int, total int64) {
	r.observe(rowsReturned, float64(returned))
	r.observe(rowsTotal, float64(total))
}

func (r *Recorder) ObservePageSize(n int) { r.observe(pageSize, float64(n)) }

func (r *Recorder) RequestRejected() {
	if r == nil {
		return
	}
	requestsRejected.WithLabelValues(r.stage).Inc()
}

func (r *Recorder) RequestFailed() {
	if r == nil {
		return
	}
	errorsTotal.WithLabelValues(r.stage).Inc()
}

// Handler returns the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
