package utils

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestOnceGuardScriptShape(t *testing.T) {
	if onceGuardScript == nil {
		t.Fatalf("expected script to be initialized")
	}

	// The claim must be one atomic SET carrying NX (claim-once) and PX
	// (leak protection); losing either silently breaks the guard contract.
	for _, directive := range []string{"'SET'", "'NX'", "'PX'"} {
		if !strings.Contains(onceGuardLua, directive) {
			t.Fatalf("guard script missing %s directive", directive)
		}
	}
	if strings.Count(onceGuardLua, "redis.call") != 1 {
		t.Fatalf("guard claim must be a single atomic call:\n%s", onceGuardLua)
	}
}

func TestOnceGuardArgumentValidation(t *testing.T) {
	ctx := context.Background()
	// Argument checks run before any network round trip, so an unconnected
	// client never gets dialed here.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := ClaimOnce(ctx, nil, "k", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := ClaimOnce(ctx, rdb, "", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := ClaimOnce(ctx, rdb, "k", 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}

	if err := ReleaseOnce(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseOnce(ctx, rdb, ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	c := RedisConfig{}.withDefaults()
	if c.DialTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		t.Fatalf("expected positive timeouts, got %+v", c)
	}
	if c.PoolSize <= 0 || c.PingTimeout <= 0 {
		t.Fatalf("expected positive pool settings, got %+v", c)
	}
}
