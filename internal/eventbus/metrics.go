package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// busCollector читает Stats шины при каждом опросе /metrics.
type busCollector struct {
	bus       EventBus
	published *prometheus.Desc
	consumed  *prometheus.Desc
	dropped   *prometheus.Desc
	inflight  *prometheus.Desc
}

// RegisterMetrics регистрирует метрики шины в reg под пространством
// plots_eventbus.
func RegisterMetrics(bus EventBus, reg prometheus.Registerer) error {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("plots_eventbus", "", name), help, nil, nil)
	}
	return reg.Register(&busCollector{
		bus:       bus,
		published: desc("messages_published_total", "Опубликовано событий плотов."),
		consumed:  desc("messages_consumed_total", "Доставлено событий подписчикам."),
		dropped:   desc("messages_dropped_total", "Отброшено событий (переполнение или битый JSON)."),
		inflight:  desc("messages_inflight", "События в буфере шины."),
	})
}

func (bc *busCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bc.published
	ch <- bc.consumed
	ch <- bc.dropped
	ch <- bc.inflight
}

func (bc *busCollector) Collect(ch chan<- prometheus.Metric) {
	s := bc.bus.Metrics()
	ch <- prometheus.MustNewConstMetric(bc.published, prometheus.CounterValue, float64(s.Published))
	ch <- prometheus.MustNewConstMetric(bc.consumed, prometheus.CounterValue, float64(s.Consumed))
	ch <- prometheus.MustNewConstMetric(bc.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(bc.inflight, prometheus.GaugeValue, float64(s.InFlight))
}
