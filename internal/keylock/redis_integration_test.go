//go:build integration

package keylock

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"example.com/studysync/internal/domain"
)

func TestRedisLeaseIsExclusive(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t, ctx)

	first := NewRedis(client, "test:", time.Minute, zerolog.Nop())
	second := NewRedis(client, "test:", time.Minute, zerolog.Nop())

	release, err := first.TryAcquire(ctx, "u1/2024-01-01")
	require.NoError(t, err)

	_, err = second.TryAcquire(ctx, "u1/2024-01-01")
	require.ErrorIs(t, err, domain.ErrKeyLocked)

	release()

	again, err := second.TryAcquire(ctx, "u1/2024-01-01")
	require.NoError(t, err)
	again()
}

func TestRedisLeaseExpires(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t, ctx)
	locker := NewRedis(client, "test:", 200*time.Millisecond, zerolog.Nop())

	_, err := locker.TryAcquire(ctx, "abandoned")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		release, err := locker.TryAcquire(ctx, "abandoned")
		if err != nil {
			return false
		}
		release()
		return true
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisReleaseFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t, ctx)

	var buf bytes.Buffer
	locker := NewRedis(client, "test:", time.Minute, zerolog.New(&buf))

	release, err := locker.TryAcquire(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, client.Close())
	release()

	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), "lease release failed")
	require.Contains(t, buf.String(), "test:u1")
}

func setupRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}
