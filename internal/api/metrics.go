package api

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/quantserve/internal/inference"
)

// Metrics owns a private Prometheus registry so tests and multiple servers
// in one process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	generations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	tokens      *prometheus.CounterVec
	throughput  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantserve",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantserve",
			Name:      "generations_total",
			Help:      "Generation requests by model variant and outcome.",
		}, []string{"model", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quantserve",
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock time of successful generations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"model"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantserve",
			Name:      "generated_tokens_total",
			Help:      "Tokens produced by successful generations.",
		}, []string{"model"}),
		throughput: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "quantserve",
			Name:      "last_tokens_per_second",
			Help:      "Throughput of the most recent generation.",
		}, []string{"model"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveGeneration(variant string, resp *inference.GenerationResponse, err error) {
	if err != nil {
		m.generations.WithLabelValues(variant, "error").Inc()
		return
	}
	m.generations.WithLabelValues(variant, "ok").Inc()
	m.latency.WithLabelValues(variant).Observe(float64(resp.TotalTimeMS) / 1000)
	m.tokens.WithLabelValues(variant).Add(float64(resp.TokensGenerated))
	m.throughput.WithLabelValues(variant).Set(resp.TokensPerSecond)
}
