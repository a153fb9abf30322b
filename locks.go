package main

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// ChannelLocks tracks which channels currently host a duel so that at most
// one duel runs per channel. A fresh instance is injected into the duel
// manager rather than living as a package global.
type ChannelLocks struct {
	mu     sync.Mutex
	locked map[snowflake.ID]struct{}
}

func NewChannelLocks() *ChannelLocks {
	return &ChannelLocks{locked: make(map[snowflake.ID]struct{})}
}

// TryAcquire marks the channel as hosting a duel. Returns false without
// blocking if the channel is already taken.
func (l *ChannelLocks) TryAcquire(channelID snowflake.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.locked[channelID]; held {
		return false
	}
	l.locked[channelID] = struct{}{}
	return true
}

// Release frees the channel. Releasing a channel that is not locked is a
// no-op.
func (l *ChannelLocks) Release(channelID snowflake.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, channelID)
}

// Held reports whether the channel currently hosts a duel.
func (l *ChannelLocks) Held(channelID snowflake.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.locked[channelID]
	return held
}
