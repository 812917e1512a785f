package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 4, cfg.ReconcileWorkers)
	require.Equal(t, 5*time.Second, cfg.RemoteCallTimeout)
	require.Equal(t, "user_sessions", cfg.LoginTopic)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, LeaseNone, cfg.KeyLeaseMode)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("RECONCILE_WORKERS", "16")
	t.Setenv("REMOTE_CALL_TIMEOUT", "750ms")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 16, cfg.ReconcileWorkers)
	require.Equal(t, 750*time.Millisecond, cfg.RemoteCallTimeout)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"RECONCILE_WORKERS":   "0",
		"REMOTE_CALL_TIMEOUT": "soon",
		"LOG_LEVEL":           "loud",
		"OUTBOX_BATCH_SIZE":   "-1",
		"KEY_LEASE_MODE":      "sometimes",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestRedisLeasesRequireAddress(t *testing.T) {
	t.Setenv("KEY_LEASE_MODE", LeaseRedis)

	_, err := Load()
	require.ErrorContains(t, err, "REDIS_ADDR")
}

func TestLeaseMustCoverRemoteCalls(t *testing.T) {
	t.Setenv("KEY_LEASE_MODE", LeaseRedis)
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KEY_LEASE_TTL", "5s")
	t.Setenv("REMOTE_CALL_TIMEOUT", "5s")

	_, err := Load()
	require.ErrorContains(t, err, "KEY_LEASE_TTL")
}
