package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	createdCnt      prometheus.Counter
	failedCnt       prometheus.Counter
	activeSubsGauge prometheus.GaugeFunc
}

func newMetrics(reg *Registry) *metrics {
	const ss = "subscription_registry"
	return &metrics{
		createdCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "created_cnt",
			Subsystem: ss,
			Help:      "Count of started nested subscriptions",
		}),
		failedCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "failed_cnt",
			Subsystem: ss,
			Help:      "Count of subscriptions whose factory returned an error",
		}),
		activeSubsGauge: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:      "active_subscriptions_gauge",
			Subsystem: ss,
			Help:      "actual count of active subscriptions",
		}, func() float64 {
			return float64(reg.Len())
		}),
	}
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.createdCnt,
		m.failedCnt,
		m.activeSubsGauge,
	}
}
