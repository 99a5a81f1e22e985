package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis (set REDIS_TEST_ADDR)")
	}
	c, err := NewClient(addr, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLockIsExclusive(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test:" + t.Name()

	token, ok, err := c.AcquireLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, token))

	token, ok, err = c.AcquireLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.ReleaseLock(ctx, key, token))
}

func TestReleaseWithForeignTokenKeepsLock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test:" + t.Name()

	token, ok, err := c.AcquireLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, "someone-else"))

	_, ok, err = c.AcquireLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, token))
}
