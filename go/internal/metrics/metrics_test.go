package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector(t *testing.T) {
	t.Parallel()
	m := NewPrometheusCollector(prometheus.NewRegistry())

	m.RecordPoll("chat", true, 20*time.Millisecond)
	m.RecordPoll("chat", false, time.Millisecond)
	m.RecordPoll("balance", true, time.Millisecond)
	m.RecordMessagesAppended(3)
	m.RecordMessagesAppended(0)
	m.RecordAlert()
	m.RecordLedgerSize(4)
	m.RecordLedgerSize(2)
	m.RecordUserAction("send", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("chat", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("chat", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("balance", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.appended))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("send", "failure")))
}

func TestCollectorsShareNoGlobalState(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})

	var c Collector = NoOpCollector{}
	c.RecordPoll("chat", true, time.Second)
}
