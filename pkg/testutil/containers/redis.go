//go:build integration

package containers

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"simrelease/internal/platform/config"
	platformredis "simrelease/internal/platform/redis"
)

// RedisContainer is a disposable Redis reached through the same connect
// path the server uses.
type RedisContainer struct {
	URL    string
	Client *goredis.Client
}

// NewRedisContainer starts Redis and connects to it. Both are torn down when
// the test finishes.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	c, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	url, err := c.ConnectionString(ctx)
	require.NoError(t, err, "redis connection string")

	client, err := platformredis.Connect(ctx, config.RedisConfig{URL: url, PoolSize: 4})
	require.NoError(t, err, "connect redis")
	t.Cleanup(func() { _ = client.Close() })

	return &RedisContainer{URL: url, Client: client.Client}
}
