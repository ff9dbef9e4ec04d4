//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simrelease/pkg/testutil/containers"
)

func TestRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	trl := NewRedis(rc.Client, WithMetrics(NewMetrics(nil)))

	require.NoError(t, trl.Revoke(ctx, "jti-1", time.Minute))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsRevoked(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	ttl, err := rc.Client.TTL(ctx, keyPrefix+"jti-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedis_ExpiredEntry(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	trl := NewRedis(rc.Client)

	require.NoError(t, trl.Revoke(ctx, "short", 50*time.Millisecond))
	assert.Eventually(t, func() bool {
		revoked, err := trl.IsRevoked(ctx, "short")
		return err == nil && !revoked
	}, 5*time.Second, 50*time.Millisecond)
}
