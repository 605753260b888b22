package http_controller

import (
	"github.com/horockey/go-toolbox/prometheus_helpers"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	handleTimeHist    prometheus.Histogram
	requestsCnt       *prometheus.CounterVec
	successProcessCnt *prometheus.CounterVec
	errProcessCnt     *prometheus.CounterVec
}

func newMetrics() *metrics {
	const ss = "http_controller"
	return &metrics{
		handleTimeHist: prometheus.NewHistogram(*prometheus_helpers.NewHistOpts(
			"handle_time_hist",
			prometheus_helpers.HistOptsWithSubsystem(ss),
			prometheus_helpers.HistOptsWithHelp("Time spent serving visible set queries"),
		)),
		requestsCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "requests_cnt",
			Subsystem: ss,
			Help:      "Count of visible set API requests per route",
		}, []string{"route"}),
		successProcessCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "success_responses_cnt",
			Subsystem: ss,
			Help:      "Count of visible set API responses with status below 400 per route",
		}, []string{"route"}),
		errProcessCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "err_responses_cnt",
			Subsystem: ss,
			Help:      "Count of visible set API responses with status 400 and above per route",
		}, []string{"route"}),
	}
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.handleTimeHist,
		m.requestsCnt,
		m.successProcessCnt,
		m.errProcessCnt,
	}
}
