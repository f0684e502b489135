package broadcaster

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"seqdb/infra/catalog"
	"seqdb/infra/metrics"
)

// Outbox is the durable queue of DDL events.
type Outbox interface {
	ScanPending(fn func(rec *catalog.OutboxRecord) error) error
	MarkSent(seq uint64) error
	MarkAcked(seq uint64) error
	PurgeAcked() (int, error)
}

// Publisher delivers one event payload to the change feed.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type Config struct {
	Topic    string
	Interval time.Duration
	// PurgeEvery drops acknowledged records every n passes. Zero keeps them.
	PurgeEvery int
}

type Broadcaster struct {
	outbox  Outbox
	pub     Publisher
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	passes  int
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	outbox Outbox,
	pub Publisher,
	cfg Config,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		outbox:  outbox,
		pub:     pub,
		cfg:     cfg,
		log:     log.WithField("component", "broadcaster"),
		metrics: m,
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run publishes pending events until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.WithField("topic", b.cfg.Topic).Info("started")

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := b.ReplayOnce(ctx); err != nil {
				b.log.WithError(err).Warn("replay failed")
			}
		}
	}
}

// ------------------------------------------------
// REPLAY
// ------------------------------------------------

// ReplayOnce sends every pending record once, in commit order. It stops at
// the first record the broker rejects so later events are not delivered
// ahead of it. It returns how many records were acknowledged.
func (b *Broadcaster) ReplayOnce(ctx context.Context) (int, error) {
	sent := 0
	errStop := errors.New("stop")
	err := b.outbox.ScanPending(func(rec *catalog.OutboxRecord) error {
		ev, err := rec.Event()
		if err != nil {
			return err
		}

		if err := b.outbox.MarkSent(rec.Seq); err != nil {
			return err
		}

		if err := b.pub.Publish(ctx, []byte(ev.Name), rec.Payload); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"seq":     rec.Seq,
				"retries": rec.Retries + 1,
			}).Warn("publish failed, will retry")
			return errStop
		}

		if err := b.outbox.MarkAcked(rec.Seq); err != nil {
			return err
		}
		b.metrics.EventPublished()
		sent++
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return sent, err
	}

	b.passes++
	if b.cfg.PurgeEvery > 0 && b.passes%b.cfg.PurgeEvery == 0 {
		n, err := b.outbox.PurgeAcked()
		if err != nil {
			return sent, errors.Wrap(err, "purge acked")
		}
		if n > 0 {
			b.log.WithField("purged", n).Debug("outbox purged")
		}
	}
	return sent, nil
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}
