//go:build integration

package imagecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func TestRedisStorage(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	client, err := DialRedis(ctx, addr, "", 0)
	require.NoError(t, err)
	s := NewRedisStorage(client, time.Minute)
	defer s.Close()

	_, ok := s.Get(ctx, "u")
	assert.False(t, ok)

	s.Set(ctx, Image{URL: "u", Data: []byte{0, 1, 2, 255}, ContentType: "image/png"})
	img, ok := s.Get(ctx, "u")
	require.True(t, ok)
	assert.Equal(t, []byte{0, 1, 2, 255}, img.Data)
	assert.Equal(t, "image/png", img.ContentType)

	ttl, err := client.TTL(ctx, redisKeyPrefix+"u").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestCacheWithRedis_SharedAcrossInstances(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	client, err := DialRedis(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	first := newGatedFetcher()
	close(first.gate)
	_, err = New(first, WithStorage(NewRedisStorage(client, time.Minute))).Fetch(ctx, "u")
	require.NoError(t, err)

	second := newGatedFetcher()
	close(second.gate)
	_, err = New(second, WithStorage(NewRedisStorage(client, time.Minute))).Fetch(ctx, "u")
	require.NoError(t, err)
	assert.Zero(t, second.calls.Load())
}
