package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storebot/internal/config"
)

func testConfig(t *testing.T, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return config.RedisConfig{
		Host:        mr.Host(),
		Port:        port,
		PoolSize:    4,
		DialTimeout: time.Second,
	}
}

func TestInit(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Cleanup(func() { _ = Close() })

	client, err := Init(testConfig(t, mr))
	require.NoError(t, err)
	assert.Same(t, client, GetClient())
	assert.NoError(t, Health(context.Background()))

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestInitUnreachable(t *testing.T) {
	Client = nil

	// nothing listens there
	_, err := Init(config.RedisConfig{
		Host:        "127.0.0.1",
		Port:        1,
		DialTimeout: 100 * time.Millisecond,
	})
	assert.Error(t, err)
	assert.Nil(t, GetClient())
	assert.ErrorIs(t, Health(context.Background()), ErrNotInitialized)
}

func TestClose(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := Init(testConfig(t, mr))
	require.NoError(t, err)

	assert.NoError(t, Close())
	assert.Nil(t, GetClient())

	// Client is nil
	assert.NoError(t, Close())
}

func TestHealthAfterServerStops(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Cleanup(func() { _ = Close() })
	_, err := Init(testConfig(t, mr))
	require.NoError(t, err)

	mr.Close()
	assert.Error(t, Health(context.Background()))
}
