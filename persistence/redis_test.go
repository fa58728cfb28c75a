package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisMatchRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("redis container test skipped in short mode")
	}
	ctx := context.Background()

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

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	repo := NewRedisMatchRepository(NewRedisClient(fmt.Sprintf("%s:%s", host, port.Port()), "", 0), time.Minute)
	defer repo.Close()

	snap := sampleSnapshot("m-redis")
	require.NoError(t, repo.SaveMatch(ctx, snap))
	got, err := repo.LoadMatch(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Scores, got.Scores)
	assert.Equal(t, snap.CarriedTime, got.CarriedTime)

	ttl, err := repo.client.TTL(ctx, matchKey(snap.ID)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	require.NoError(t, repo.DeleteMatch(ctx, snap.ID))
	_, err = repo.LoadMatch(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
