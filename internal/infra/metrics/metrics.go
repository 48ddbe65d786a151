package metrics

import (
	"net/http"
	"strconv"
	"time"

	"chainsign/internal/domain"
	"chainsign/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so that tests and multiple servers in one process never collide.
type Metrics struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	signDuration *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	devices      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainsign",
			Name:      "transactions_total",
			Help:      "Signing attempts by algorithm and outcome.",
		}, []string{"algorithm", "result"}),
		signDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainsign",
			Name:      "sign_duration_seconds",
			Help:      "Time from lock request to committed transaction.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"algorithm"}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chainsign",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a device lock.",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		devices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainsign",
			Name:      "devices_registered_total",
			Help:      "Registered devices by algorithm.",
		}, []string{"algorithm"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainsign",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainsign",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) DeviceRegistered(alg domain.Algorithm) {
	m.devices.WithLabelValues(string(alg)).Inc()
}

func (m *Metrics) TransactionCommitted(alg domain.Algorithm, elapsed time.Duration) {
	m.transactions.WithLabelValues(string(alg), "ok").Inc()
	m.signDuration.WithLabelValues(string(alg)).Observe(elapsed.Seconds())
}

func (m *Metrics) TransactionFailed(alg domain.Algorithm, reason string) {
	label := string(alg)
	if label == "" {
		label = "unknown"
	}
	m.transactions.WithLabelValues(label, reason).Inc()
}

func (m *Metrics) LockWaited(elapsed time.Duration) {
	m.lockWait.Observe(elapsed.Seconds())
}

// Middleware labels requests by route template, so device ids never become label values.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

var _ usecase.Observer = (*Metrics)(nil)
