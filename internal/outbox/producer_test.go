package outbox

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerRejectsUnkeyedMessages(t *testing.T) {
	producer := NewKafkaProducer([]string{"127.0.0.1:1"})
	defer producer.Close()

	err := producer.WriteMessages(context.Background(), "userdata_events",
		kafka.Message{Key: []byte("u1"), Value: []byte(`{}`)},
		kafka.Message{Value: []byte(`{}`)},
	)
	require.ErrorContains(t, err, "no partition key")
	require.Empty(t, producer.writers, "no writer is opened for a rejected batch")
}

func TestKafkaProducerReusesWriterPerTopic(t *testing.T) {
	producer := NewKafkaProducer([]string{"127.0.0.1:1"})
	defer producer.Close()

	first := producer.writer("userdata_events")
	require.Same(t, first, producer.writer("userdata_events"))
	require.NotSame(t, first, producer.writer("another"))
	require.IsType(t, &kafka.Hash{}, first.Balancer)

	require.NoError(t, producer.Close())
	require.Empty(t, producer.writers)
}
