package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Hour)
	defer c.Close()
	ctx := context.Background()

	err := c.Set(ctx, "proposal:abc", []byte(`{"status":"liveness"}`), 0)
	require.NoError(t, err)

	val, found, err := c.Get(ctx, "proposal:abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"status":"liveness"}`, string(val))
}

func TestMemoryCacheGetMiss(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Hour)
	defer c.Close()

	val, found, err := c.Get(context.Background(), "does:not:exist")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short-lived", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, found, err := c.Get(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, found, "expired entry must not be returned even before the sweep runs")
}

func TestMemoryCacheSweepRemovesExpiredEntries(t *testing.T) {
	c := NewMemoryCache(time.Minute, 20*time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ephemeral", []byte("v"), 5*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	c.mu.RLock()
	_, stillPresent := c.entries["ephemeral"]
	c.mu.RUnlock()
	assert.False(t, stillPresent, "sweep should have evicted the expired entry")
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, "key"))

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheKeysGlobMatch(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "event:e1:proposals", []byte("[]"), 0))
	require.NoError(t, c.Set(ctx, "event:e2:proposals", []byte("[]"), 0))
	require.NoError(t, c.Set(ctx, "proposal:p1", []byte("{}"), 0))

	matches, err := c.Keys(ctx, "event:*:proposals")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"event:e1:proposals", "event:e2:proposals"}, matches)
}

func TestMemoryCacheKeysExcludesExpired(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "proposal:p1", []byte("{}"), 5*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	matches, err := c.Keys(ctx, "proposal:*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryCacheDefaultTTLAppliesWhenZero(t *testing.T) {
	c := NewMemoryCache(10*time.Millisecond, time.Hour)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("v"), 0))
	time.Sleep(30 * time.Millisecond)

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheCloseStopsSweepGoroutine(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Millisecond)
	assert.NoError(t, c.Close())

	assert.Panics(t, func() {
		close(c.stopCh)
	}, "closing an already-closed stop channel panics, proving Close actually closed it")
}
