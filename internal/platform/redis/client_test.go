package redis

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/platform/config"
)

func TestNewWithoutURLIsDisabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{}, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestPoolStatsLandOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rc.Close() })

	client := newClient(rc, reg)
	client.recordPoolStats()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"eventgate_redis_pool_hits_total",
		"eventgate_redis_pool_misses_total",
		"eventgate_redis_pool_timeouts_total",
		"eventgate_redis_pool_total_conns",
		"eventgate_redis_pool_idle_conns",
	}, names)
	assert.Equal(t, 0.0, testutil.ToFloat64(client.metrics.totalConns))
}

func TestClientsDoNotShareRegistries(t *testing.T) {
	first, second := prometheus.NewRegistry(), prometheus.NewRegistry()
	a := newClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), first)
	b := newClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), second)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	a.metrics.hits.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.metrics.hits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.metrics.hits))
}
