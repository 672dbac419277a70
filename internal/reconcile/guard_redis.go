package reconcile

import (
	"context"
	"time"

	"callmind/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const defaultGuardTTL = 10 * time.Minute

// RedisOnceGuard backs the transcript single-shot claim with an atomic
// SET NX in Redis, so a completion webhook fanned out to several replicas
// results in exactly one provider fetch.
type RedisOnceGuard struct {
	RDB *redis.Client

	// TTL bounds how long a crashed claimant blocks a manual re-fetch.
	TTL time.Duration
}

func (g RedisOnceGuard) Claim(ctx context.Context, key string) (bool, error) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return utils.ClaimOnce(ctx, g.RDB, key, ttl)
}

func (g RedisOnceGuard) Release(ctx context.Context, key string) error {
	return utils.ReleaseOnce(ctx, g.RDB, key)
}
