package aggregator

import (
	"github.com/horockey/go-toolbox/prometheus_helpers"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	handleTimeHist      prometheus.Histogram
	regTypeRecordsCnt   prometheus.Counter
	instanceRecordsCnt  prometheus.Counter
	unrecognizedCnt     prometheus.Counter
	orphanCnt           prometheus.Counter
	violationsCnt       prometheus.Counter
	transportErrCnt     prometheus.Counter
	visibleEntriesGauge prometheus.Gauge
}

func newMetrics() *metrics {
	const ss = "aggregator"
	return &metrics{
		handleTimeHist: prometheus.NewHistogram(*prometheus_helpers.NewHistOpts(
			"handle_time_hist",
			prometheus_helpers.HistOptsWithSubsystem(ss),
			prometheus_helpers.HistOptsWithHelp("Handle time distribution"),
		)),
		regTypeRecordsCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "reg_type_records_cnt",
			Subsystem: ss,
			Help:      "Count of records received from the type browse",
		}),
		instanceRecordsCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "instance_records_cnt",
			Subsystem: ss,
			Help:      "Count of records received from instance browses",
		}),
		unrecognizedCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "unrecognized_protocol_cnt",
			Subsystem: ss,
			Help:      "Count of reg types skipped for their protocol suffix",
		}),
		orphanCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "orphan_instances_cnt",
			Subsystem: ss,
			Help:      "Count of instance records for unknown reg types",
		}),
		violationsCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "invariant_violations_cnt",
			Subsystem: ss,
			Help:      "Count of removals without a matching appearance",
		}),
		transportErrCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "transport_errors_cnt",
			Subsystem: ss,
			Help:      "Count of failures reported by the discovery transport",
		}),
		visibleEntriesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "visible_entries_gauge",
			Subsystem: ss,
			Help:      "actual count of reg types with live instances",
		}),
	}
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.handleTimeHist,
		m.regTypeRecordsCnt,
		m.instanceRecordsCnt,
		m.unrecognizedCnt,
		m.orphanCnt,
		m.violationsCnt,
		m.transportErrCnt,
		m.visibleEntriesGauge,
	}
}
