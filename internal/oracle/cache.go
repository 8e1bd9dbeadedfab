package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache decorates a Checker with a TTL-bounded cache keyed on client
// address, so repeated lookups for the same address across a fleet of
// greyd instances don't re-trigger a DNSBL query within the TTL. Modeled
// on the go-redis wrapping in the teacher's internal/infra/redis_adapter.go.
type RedisCache struct {
	inner Checker
	rdb   *redis.Client
	ttl   time.Duration
	keyFn func(string) string
}

// NewRedisCache connects to addr and wraps inner. A connection failure is
// returned to the caller, who decides whether to fall back to the
// uncached Checker (see cmd/greyd's wiring).
func NewRedisCache(inner Checker, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("oracle: redis ping failed (%s): %w", addr, err)
	}

	slog.Info("oracle cache connected", "addr", addr, "db", db)
	return &RedisCache{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		keyFn: func(clientAddress string) string { return "greyd:oracle:" + clientAddress },
	}, nil
}

// Close shuts down the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// Check returns the cached verdict if present and not expired; otherwise
// it consults inner and caches the result (Timeout/Error results are not
// cached — a transient oracle failure should not pin an address to GRAY
// for the full TTL).
func (c *RedisCache) Check(ctx context.Context, clientAddress string) (Verdict, error) {
	key := c.keyFn(clientAddress)

	if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if v, ok := parseVerdict(cached); ok {
			return v, nil
		}
	}

	v, err := c.inner.Check(ctx, clientAddress)
	if err != nil {
		return v, err
	}

	// Best-effort: a cache write failure must not fail the request.
	_ = c.rdb.Set(ctx, key, v.String(), c.ttl).Err()
	return v, nil
}

func parseVerdict(s string) (Verdict, bool) {
	switch s {
	case "CLEAN":
		return Clean, true
	case "SUSPICIOUS":
		return Suspicious, true
	default:
		return Error, false
	}
}
