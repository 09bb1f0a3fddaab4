package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the interface for collecting sync loop metrics
type Collector interface {
	RecordPoll(loop string, success bool, duration time.Duration)
	RecordMessagesAppended(count int)
	RecordAlert()
	RecordLedgerSize(size int)
	RecordUserAction(action string, success bool)
}

// NoOpCollector is a no-op implementation for when metrics aren't needed
type NoOpCollector struct{}

func (NoOpCollector) RecordPoll(loop string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordMessagesAppended(count int)                             {}
func (NoOpCollector) RecordAlert()                                                 {}
func (NoOpCollector) RecordLedgerSize(size int)                                    {}
func (NoOpCollector) RecordUserAction(action string, success bool)                 {}

// PrometheusCollector implements Collector using Prometheus
type PrometheusCollector struct {
	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	appended     prometheus.Counter
	alerts       prometheus.Counter
	ledgerSize   prometheus.Gauge
	actions      *prometheus.CounterVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	m := &PrometheusCollector{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donut_polls_total",
			Help: "Total number of sync loop polls",
		}, []string{"loop", "status"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "donut_poll_duration_seconds",
			Help:    "Sync loop poll duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donut_chat_messages_appended_total",
			Help: "Total number of chat messages appended to the feed",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donut_coinflip_alerts_total",
			Help: "Total number of coinflip join alerts shown",
		}),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "donut_pending_coinflips",
			Help: "Entries in the pending coinflip ledger at the last check",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donut_user_actions_total",
			Help: "Total number of user initiated requests",
		}, []string{"action", "status"}),
	}
	reg.MustRegister(m.polls, m.pollDuration, m.appended, m.alerts, m.ledgerSize, m.actions)
	return m
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *PrometheusCollector) RecordPoll(loop string, success bool, duration time.Duration) {
	m.polls.WithLabelValues(loop, status(success)).Inc()
	m.pollDuration.WithLabelValues(loop).Observe(duration.Seconds())
}

func (m *PrometheusCollector) RecordMessagesAppended(count int) {
	m.appended.Add(float64(count))
}

func (m *PrometheusCollector) RecordAlert() {
	m.alerts.Inc()
}

func (m *PrometheusCollector) RecordLedgerSize(size int) {
	m.ledgerSize.Set(float64(size))
}

func (m *PrometheusCollector) RecordUserAction(action string, success bool) {
	m.actions.WithLabelValues(action, status(success)).Inc()
}
