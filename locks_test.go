package main

import (
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
)

func TestChannelLocksAcquireRelease(t *testing.T) {
	locks := NewChannelLocks()
	channel := snowflake.ID(100)

	assert.False(t, locks.Held(channel))
	assert.True(t, locks.TryAcquire(channel))
	assert.True(t, locks.Held(channel))

	// Second acquire on the same channel fails without blocking.
	assert.False(t, locks.TryAcquire(channel))

	locks.Release(channel)
	assert.False(t, locks.Held(channel))
	assert.True(t, locks.TryAcquire(channel))
}

func TestChannelLocksIndependentChannels(t *testing.T) {
	locks := NewChannelLocks()

	assert.True(t, locks.TryAcquire(snowflake.ID(1)))
	assert.True(t, locks.TryAcquire(snowflake.ID(2)))
	assert.False(t, locks.TryAcquire(snowflake.ID(1)))

	locks.Release(snowflake.ID(1))
	assert.True(t, locks.TryAcquire(snowflake.ID(1)))
	assert.True(t, locks.Held(snowflake.ID(2)))
}

func TestChannelLocksReleaseIdempotent(t *testing.T) {
	locks := NewChannelLocks()
	channel := snowflake.ID(7)

	locks.Release(channel)
	locks.Release(channel)

	assert.True(t, locks.TryAcquire(channel))
	locks.Release(channel)
	locks.Release(channel)
	assert.True(t, locks.TryAcquire(channel))
}

func TestChannelLocksConcurrentAcquire(t *testing.T) {
	locks := NewChannelLocks()
	channel := snowflake.ID(55)

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if locks.TryAcquire(channel) {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
}
