package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.Nil(t, New(nil))
	assert.NotPanics(t, func() {
		m.NextVal("ok", time.Millisecond)
		m.DDL("create", "ok")
		m.CommitRetry()
		m.Evicted(3)
		m.SessionOpened()
	})
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.NextVal("ok", time.Millisecond)
	m.NextVal("ok", time.Millisecond)
	m.NextVal("limit_exceeded", time.Millisecond)
	m.CommitRetry()
	m.Evicted(2)
	m.Evicted(0)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.nextVal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nextVal.WithLabelValues("limit_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitRetries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))

	active := 4
	RegisterTxnGauge(reg, func() int { return active })
	n, err := testutil.GatherAndCount(reg, "seqdb_active_transactions")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
