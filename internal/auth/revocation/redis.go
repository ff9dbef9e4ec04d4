package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "simrelease:trl:jti:"

// Redis is a List shared by every instance through Redis.
type Redis struct {
	client  redis.UniversalClient
	metrics *Metrics
}

type RedisOption func(*Redis)

func WithMetrics(m *Metrics) RedisOption {
	return func(r *Redis) { r.metrics = m }
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Revoke stores a marker that expires with the token.
func (r *Redis) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+jti, "1", ttl).Err()
}

func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	start := time.Now()
	defer r.metrics.observe(start)

	if jti == "" {
		return false, nil
	}
	err := r.client.Get(ctx, keyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
