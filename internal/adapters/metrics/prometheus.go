package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry agrupa las métricas del servicio. Implementa delphi.Observer y cache.Observer.
type Registry struct {
	reg *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
}

// New crea un registro propio (no el global) con todas las métricas.
// ghosts se consulta en cada scrape para publicar el tamaño del set de fantasmas.
func New(ghosts func() int) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delphibot_upstream_requests_total",
				Help: "Requests to the Delphi API by endpoint, status and outcome",
			},
			[]string{"endpoint", "status", "ok"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "delphibot_upstream_request_duration_seconds",
				Help:    "Latency of Delphi API requests",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 9, 15, 30},
			},
			[]string{"endpoint"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delphibot_cache_hits_total",
				Help: "Cache hits by slot",
			},
			[]string{"slot"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delphibot_cache_misses_total",
				Help: "Cache misses by slot",
			},
			[]string{"slot"},
		),
	}

	r.reg.MustRegister(r.upstreamRequests, r.upstreamLatency, r.cacheHits, r.cacheMisses)
	if ghosts != nil {
		r.reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "delphibot_ghost_markets",
				Help: "Markets classified as ghosts in this process",
			},
			func() float64 { return float64(ghosts()) },
		))
	}
	return r
}

// ObserveRequest implementa delphi.Observer.
func (r *Registry) ObserveRequest(endpoint string, status int, ok bool, elapsed time.Duration) {
	r.upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(status), strconv.FormatBool(ok)).Inc()
	r.upstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// CacheHit implementa cache.Observer.
func (r *Registry) CacheHit(slot string) {
	r.cacheHits.WithLabelValues(slot).Inc()
}

// CacheMiss implementa cache.Observer.
func (r *Registry) CacheMiss(slot string) {
	r.cacheMisses.WithLabelValues(slot).Inc()
}

// Handler sirve /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
