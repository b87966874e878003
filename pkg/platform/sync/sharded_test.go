package sync

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedMutex_SameKeySerializes(t *testing.T) {
	m := NewShardedMutex(8)
	counter := 0
	var wg sync.WaitGroup

	for range 200 {
		wg.Go(func() {
			m.Lock("T200")
			defer m.Unlock("T200")
			counter++
		})
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
}

func TestShardedMutex_DefaultShards(t *testing.T) {
	m := NewShardedMutex(0)
	require.Len(t, m.shards, defaultShards)

	m.Lock("")
	m.Unlock("")
}

func TestShardedMutex_Distribution(t *testing.T) {
	m := NewShardedMutex(16)
	seen := make(map[int]struct{})
	for i := range 500 {
		seen[m.shardFor(fmt.Sprintf("token-%d", i))] = struct{}{}
	}
	assert.Greater(t, len(seen), 8, "tokens should spread across shards")
}

func TestShardedMutex_WithLockReturnsError(t *testing.T) {
	m := NewShardedMutex(4)
	boom := errors.New("boom")

	err := m.WithLock("T100", func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// lock released after fn returned
	m.Lock("T100")
	m.Unlock("T100")
}
