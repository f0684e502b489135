// Package metrics holds the prometheus collectors of the sequence server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "seqdb"

type Metrics struct {
	nextVal         *prometheus.CounterVec
	nextValLatency  prometheus.Histogram
	ddl             *prometheus.CounterVec
	commitRetries   prometheus.Counter
	scanAborts      prometheus.Counter
	eventsPublished prometheus.Counter
	eventsConsumed  *prometheus.CounterVec
	cacheEvictions  prometheus.Counter
	vacuumReclaimed prometheus.Counter
	sessions        prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Metrics{
		nextVal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nextval_total",
			Help:      "nextval calls by outcome",
		}, []string{"result"}),
		nextValLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nextval_duration_seconds",
			Help:      "Time spent in nextval including the commit",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		ddl: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ddl_total",
			Help:      "Sequence DDL statements by operation and outcome",
		}, []string{"op", "result"}),
		commitRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_retries_total",
			Help:      "Commit attempts that failed transiently and were retried",
		}),
		scanAborts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_aborts_total",
			Help:      "Catalog scans aborted by a read conflict",
		}),
		eventsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "DDL change events acknowledged by the broker",
		}),
		eventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "DDL change events read from the feed",
		}, []string{"type"}),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "currval_evictions_total",
			Help:      "Session cache entries evicted by drop, rename or the change feed",
		}),
		vacuumReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vacuum_reclaimed_slots_total",
			Help:      "Catalog slots freed by vacuum",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Sessions currently open",
		}),
	}
}

// RegisterTxnGauge exposes the live transaction count.
func RegisterTxnGauge(reg prometheus.Registerer, active func() int) {
	if reg == nil {
		return
	}
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_transactions",
		Help:      "Transactions begun and not yet finished",
	}, func() float64 { return float64(active()) })
}

func (m *Metrics) NextVal(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.nextVal.WithLabelValues(result).Inc()
	m.nextValLatency.Observe(took.Seconds())
}

func (m *Metrics) DDL(op, result string) {
	if m == nil {
		return
	}
	m.ddl.WithLabelValues(op, result).Inc()
}

func (m *Metrics) CommitRetry() {
	if m == nil {
		return
	}
	m.commitRetries.Inc()
}

func (m *Metrics) ScanAbort() {
	if m == nil {
		return
	}
	m.scanAborts.Inc()
}

func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.eventsPublished.Inc()
}

func (m *Metrics) EventConsumed(typ string) {
	if m == nil {
		return
	}
	m.eventsConsumed.WithLabelValues(typ).Inc()
}

func (m *Metrics) Evicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

func (m *Metrics) Reclaimed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.vacuumReclaimed.Add(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
