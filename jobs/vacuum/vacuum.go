// Package vacuum periodically frees catalog slots whose versions no live
// transaction can see any more.
package vacuum

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"seqdb/infra/metrics"
)

// Horizon reports the oldest snapshot still in use.
type Horizon interface {
	OldestActive() uint64
}

// Reclaimer frees versions that ended at or before a snapshot.
type Reclaimer interface {
	Vacuum(oldest uint64) int
}

type Job struct {
	horizon  Horizon
	tables   []Reclaimer
	interval time.Duration
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

func New(h Horizon, interval time.Duration, m *metrics.Metrics, log logrus.FieldLogger, tables ...Reclaimer) *Job {
	if interval <= 0 {
		interval = time.Second
	}
	return &Job{
		horizon:  h,
		tables:   tables,
		interval: interval,
		log:      log.WithField("component", "vacuum"),
		metrics:  m,
	}
}

// Run vacuums every interval until ctx ends. Only one Run may be active.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Once()
		}
	}
}

// Once runs a single pass and returns the number of freed slots.
func (j *Job) Once() int {
	oldest := j.horizon.OldestActive()
	n := 0
	for _, t := range j.tables {
		n += t.Vacuum(oldest)
	}
	j.metrics.Reclaimed(n)
	if n > 0 {
		j.log.WithFields(logrus.Fields{"reclaimed": n, "horizon": oldest}).Debug("vacuum pass")
	}
	return n
}
