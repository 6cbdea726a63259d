package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - счётчики очередей миров. Нулевой указатель допустим и ничего не делает.
type Metrics struct {
	enqueued  *prometheus.CounterVec
	applied   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	backlog   *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

// NewMetrics создаёт и регистрирует метрики очередей.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plot_queue_tasks_enqueued_total",
			Help: "Количество задач, поставленных в очередь мира",
		}, []string{"world"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plot_queue_tasks_applied_total",
			Help: "Количество успешно применённых задач",
		}, []string{"world"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plot_queue_tasks_failed_total",
			Help: "Количество задач, завершившихся ошибкой",
		}, []string{"world"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plot_queue_tasks_cancelled_total",
			Help: "Количество отменённых задач",
		}, []string{"world"}),
		backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plot_queue_backlog",
			Help: "Текущее количество ожидающих задач",
		}, []string{"world"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plot_queue_task_duration_seconds",
			Help:    "Время выполнения задачи",
			Buckets: prometheus.DefBuckets,
		}, []string{"world"}),
	}
	if reg != nil {
		reg.MustRegister(m.enqueued, m.applied, m.failed, m.cancelled, m.backlog, m.duration)
	}
	return m
}

func (m *Metrics) onEnqueue(world string, backlog int) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(world).Inc()
	m.backlog.WithLabelValues(world).Set(float64(backlog))
}

func (m *Metrics) onFinish(world string, err error, took time.Duration, backlog int) {
	if m == nil {
		return
	}
	if err != nil {
		m.failed.WithLabelValues(world).Inc()
	} else {
		m.applied.WithLabelValues(world).Inc()
	}
	m.duration.WithLabelValues(world).Observe(took.Seconds())
	m.backlog.WithLabelValues(world).Set(float64(backlog))
}

func (m *Metrics) onCancel(world string, n int, backlog int) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(world).Add(float64(n))
	m.backlog.WithLabelValues(world).Set(float64(backlog))
}
