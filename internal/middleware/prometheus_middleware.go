package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics собирает метрики admin API. Запросы к плотам дополнительно
// размечаются миром из пути (:world), остальные получают world="".
//
//	m := middleware.NewHTTPMetrics("plots_api", reg)
//	r.Use(m.Handler())
//	middleware.RegisterMetricsEndpoint(r, gatherer)
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	failures *prometheus.CounterVec
	byWorld  *prometheus.CounterVec
}

// NewHTTPMetrics регистрирует метрики в reg (nil - регистр по умолчанию).
func NewHTTPMetrics(namespace string, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &HTTPMetrics{
		// экспорт архива может идти десятки секунд
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность HTTP-запросов.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"method", "route", "status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "Запросы в обработке.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_errors_total",
			Help:      "Запросы со статусом 4xx/5xx.",
		}, []string{"method", "route", "status"}),
		byWorld: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plot_requests_total",
			Help:      "Запросы к плотам по мирам и маршрутам.",
		}, []string{"world", "route"}),
	}
	reg.MustRegister(m.duration, m.inflight, m.failures, m.byWorld)
	return m
}

func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.inflight.Inc()
		defer m.inflight.Dec()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)
		m.duration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		if code >= 400 {
			m.failures.WithLabelValues(c.Request.Method, route, status).Inc()
		}
		if w := c.Param("world"); w != "" {
			m.byWorld.WithLabelValues(w, route).Inc()
		}
	}
}

// RegisterMetricsEndpoint вешает GET /metrics на g (nil - сборщик по умолчанию).
func RegisterMetricsEndpoint(r gin.IRoutes, g prometheus.Gatherer) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
