package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes outbox batches with one synchronous writer per topic. Messages are
// hashed on their partition key, so all events of one user land on the same partition in
// outbox order; a batch either returns an error or is fully acknowledged by all replicas.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	maxAttempts  int

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		maxAttempts:  3,
		writers:      make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes msgs to topic. Messages without a key are rejected, since they would
// be spread across partitions and lose per-user ordering.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		if len(msg.Key) == 0 {
			return errors.New("outbox message has no partition key")
		}
	}
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:         kafka.TCP(p.brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: p.batchTimeout,
			MaxAttempts:  p.maxAttempts,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
		}
		p.writers[topic] = w
	}
	return w
}

// Close flushes and releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
