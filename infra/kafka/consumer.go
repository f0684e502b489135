package kafka

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"seqdb/infra/catalog"
	"seqdb/infra/metrics"
)

// Evicter forgets cached currval entries of a sequence in every session.
type Evicter interface {
	EvictSequence(scopeID uint32, name string) int
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// Origin is this node's id; events it published itself are skipped.
	Origin string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer applies DDL events from other nodes to the local session cache.
type Consumer struct {
	reader  messageReader
	evict   Evicter
	origin  string
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewConsumer(cfg ConsumerConfig, evict Evicter, m *metrics.Metrics, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return newConsumer(r, cfg.Origin, evict, m, log)
}

func newConsumer(r messageReader, origin string, evict Evicter, m *metrics.Metrics, log logrus.FieldLogger) *Consumer {
	return &Consumer{
		reader:  r,
		evict:   evict,
		origin:  origin,
		log:     log.WithField("component", "feed"),
		metrics: m,
	}
}

// Run consumes until ctx ends. Offsets are committed after an event is
// applied, so a crash replays rather than loses events.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch change feed")
		}
		if err := c.handle(msg); err != nil {
			// A poison message must not wedge the feed.
			c.log.WithError(err).WithField("offset", msg.Offset).Warn("skipping bad event")
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit offset")
		}
	}
}

func (c *Consumer) handle(msg kafka.Message) error {
	var ev catalog.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return errors.Wrap(err, "decode event")
	}
	c.metrics.EventConsumed(string(ev.Type))
	if ev.Origin == c.origin {
		return nil
	}

	n := 0
	switch ev.Type {
	case catalog.EventDropped:
		n = c.evict.EvictSequence(ev.Scope, ev.Name)
	case catalog.EventRenamed:
		n = c.evict.EvictSequence(ev.Scope, ev.Name)
		n += c.evict.EvictSequence(ev.Scope, ev.NewName)
	case catalog.EventCreated:
		// A name reused after a drop on another node.
		n = c.evict.EvictSequence(ev.Scope, ev.Name)
	default:
		return errors.Newf("unknown event type %q", ev.Type)
	}
	c.log.WithFields(logrus.Fields{
		"type":     ev.Type,
		"scope":    ev.Scope,
		"sequence": ev.Name,
		"origin":   ev.Origin,
		"evicted":  n,
	}).Debug("applied remote ddl")
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
