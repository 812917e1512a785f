//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/studysync/internal/domain"
	"example.com/studysync/internal/localstore"
	"example.com/studysync/internal/reconcile"
	"example.com/studysync/internal/remotestore/memory"
)

func TestKafkaLoginEventReconcilesUser(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	const (
		topic   = "user_sessions"
		groupID = "studysync-integration"
	)

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	local := localstore.NewMemory()
	local.Put("u1", domain.LocalRecords{
		Profile: &domain.UserProfile{UserID: "u1", Email: "a@x.com"},
		Progress: []domain.ProgressEntry{
			{Date: "2024-01-01", Minutes: 30},
			{Date: "2024-01-02", Minutes: 45},
		},
	})
	remote := memory.NewStore()
	handler := NewReconcileHandler(reconcile.New(local, remote), quickBackOff, zerolog.Nop())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()

	proc := NewProcessor(reader, handler, WithMetrics(metrics))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	err = writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:     []byte("u1"),
			Value:   []byte(`{"user_id":"u1"}`),
			Headers: []kafka.Header{{Key: "event_type", Value: []byte(EventUserLoggedIn)}},
		},
		kafka.Message{
			Key:     []byte("u1"),
			Value:   []byte(`{"user_id":"u1"}`),
			Headers: []kafka.Header{{Key: "event_type", Value: []byte("user.logged_out")}},
		},
		kafka.Message{
			Key:   []byte("u1"),
			Value: []byte(`not json`),
		},
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return remote.Count(domain.KindProfile) == 1 && remote.Count(domain.KindProgress) == 2
	}, 30*time.Second, 250*time.Millisecond)

	client := &kafka.Client{Addr: kafka.TCP(broker), Timeout: 10 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
			GroupID: groupID,
			Topics:  map[string][]int{topic: {0}},
		})
		if err != nil || resp.Error != nil {
			return false
		}
		partitions := resp.Topics[topic]
		return len(partitions) == 1 && partitions[0].CommittedOffset == 3
	}, 30*time.Second, 250*time.Millisecond, "all three messages, including the undecodable one, are committed")

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.decodeErrors.WithLabelValues(topic)))
}
