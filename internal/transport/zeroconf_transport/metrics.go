package zeroconf_transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	browsesCnt  prometheus.Counter
	entriesCnt  prometheus.Counter
	removalsCnt prometheus.Counter
	errCnt      prometheus.Counter
}

func newMetrics() *metrics {
	const ss = "zeroconf_transport"
	return &metrics{
		browsesCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "browses_cnt",
			Subsystem: ss,
			Help:      "Count of started browses",
		}),
		entriesCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "entries_cnt",
			Subsystem: ss,
			Help:      "Count of delivered appearance events",
		}),
		removalsCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "removals_cnt",
			Subsystem: ss,
			Help:      "Count of delivered removal events",
		}),
		errCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "err_cnt",
			Subsystem: ss,
			Help:      "Count of browses finished with non-nil error",
		}),
	}
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.browsesCnt,
		m.entriesCnt,
		m.removalsCnt,
		m.errCnt,
	}
}
