// Package metrics holds the Prometheus instrumentation for the simulator
// and the HTTP surface.
//
// Exposed series:
//
//	leaguesim_days_simulated_total          counter
//	leaguesim_games_simulated_total         counter by playoffs
//	leaguesim_sim_day_duration_seconds      histogram
//	leaguesim_phase_changes_total           counter by phase and result
//	leaguesim_phase_change_duration_seconds histogram by phase
//	leaguesim_season                        gauge
//	leaguesim_http_requests_total           counter by method, route and status
//	leaguesim_http_request_duration_seconds histogram by method and route
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics does nothing.
type Metrics struct {
	DaysSimulated       prometheus.Counter
	GamesSimulated      *prometheus.CounterVec
	SimDayDuration      prometheus.Histogram
	PhaseChanges        *prometheus.CounterVec
	PhaseChangeDuration *prometheus.HistogramVec
	Season              prometheus.Gauge
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every series with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DaysSimulated: f.NewCounter(prometheus.CounterOpts{
			Name: "leaguesim_days_simulated_total",
			Help: "Game days simulated.",
		}),
		GamesSimulated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguesim_games_simulated_total",
			Help: "Games simulated.",
		}, []string{"playoffs"}),
		SimDayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "leaguesim_sim_day_duration_seconds",
			Help:    "Time to simulate and write one game day.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		PhaseChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguesim_phase_changes_total",
			Help: "Phase transitions by target phase and result.",
		}, []string{"phase", "result"}),
		PhaseChangeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leaguesim_phase_change_duration_seconds",
			Help:    "Time to run a phase workflow.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		Season: f.NewGauge(prometheus.GaugeOpts{
			Name: "leaguesim_season",
			Help: "Current league season.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguesim_http_requests_total",
			Help: "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leaguesim_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: reg,
	}
}

var (
	stdOnce sync.Once
	std     *Metrics
)

// Default returns the process-wide metrics, with Go runtime and process
// collectors alongside the league series.
func Default() *Metrics {
	stdOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		std = New(reg)
	})
	return std
}

func (m *Metrics) ObserveDay(games int, playoffs bool, took time.Duration) {
	if m == nil {
		return
	}
	m.DaysSimulated.Inc()
	m.GamesSimulated.WithLabelValues(strconv.FormatBool(playoffs)).Add(float64(games))
	m.SimDayDuration.Observe(took.Seconds())
}

func (m *Metrics) ObservePhase(phase string, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PhaseChanges.WithLabelValues(phase, result).Inc()
	m.PhaseChangeDuration.WithLabelValues(phase).Observe(took.Seconds())
}

func (m *Metrics) SetSeason(season int) {
	if m == nil {
		return
	}
	m.Season.Set(float64(season))
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by the chi route
// pattern, which keeps label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
