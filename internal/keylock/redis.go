package keylock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"example.com/studysync/internal/domain"
)

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis leases keys across processes with SET NX PX. Leases expire after ttl so a crashed
// pass cannot block a key forever.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis constructs a Redis locker. Keys are stored under prefix. Failed releases are
// logged on logger; the lease then lapses after ttl.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, logger zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "studysync:lease:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// TryAcquire implements Locker.
func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	name := r.prefix + key

	ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: lease %s: %v", domain.ErrRemoteUnavailable, key, err)
	}
	if !ok {
		return nil, domain.ErrKeyLocked
	}
	return func() {
		// Released on a fresh context so a cancelled pass still frees its leases.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{name}, token).Err(); err != nil {
			r.logger.Warn().Err(err).Str("lease", name).Dur("ttl", r.ttl).Msg("lease release failed, key held until expiry")
		}
	}, nil
}
