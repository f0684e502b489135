package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers []string
	Topic   string
	// BatchTimeout bounds how long a publish waits for a batch to fill.
	BatchTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes DDL events with kafka-go. It is the alternative to the
// sarama publisher in jobs/broadcaster. Events of one sequence share a key
// and so a partition.
type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: cfg.BatchTimeout,
	}, cfg.Topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic}
}

// Publish writes one event and waits for every in-sync replica.
func (p *Producer) Publish(
	ctx context.Context,
	key []byte,
	value []byte,
) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: contentTypeHeader, Value: []byte(contentTypeJSON)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "publish to %s", p.topic)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

const (
	contentTypeHeader = "content-type"
	contentTypeJSON   = "application/json"
)
