// Package metrics exposes Prometheus metrics for Quire.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	RenderTotal   *prometheus.CounterVec
	SearchTotal   *prometheus.CounterVec
	SequenceSaves *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates a registry with the Go and process collectors plus the
// application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RenderTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quire_render_total",
			Help: "Article renders by render cache outcome.",
		}, []string{"cache"}),
		SearchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quire_search_total",
			Help: "Searches by the backend that answered them.",
		}, []string{"backend"}),
		SequenceSaves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quire_sequence_saves_total",
			Help: "Journal sequence saves by result (ok, dropped, error).",
		}, []string{"result"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quire_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method", "status"}),
	}
}

// ObserveRender counts one render.
func (m *Metrics) ObserveRender(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.RenderTotal.WithLabelValues(outcome).Inc()
}

// ObserveSearch counts one search answered by backend.
func (m *Metrics) ObserveSearch(backend string) {
	m.SearchTotal.WithLabelValues(backend).Inc()
}

// ObserveSequenceSave counts one sequence save.
func (m *Metrics) ObserveSequenceSave(err error, dropped int) {
	switch {
	case err != nil:
		m.SequenceSaves.WithLabelValues("error").Inc()
	case dropped > 0:
		m.SequenceSaves.WithLabelValues("dropped").Inc()
	default:
		m.SequenceSaves.WithLabelValues("ok").Inc()
	}
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled with the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
